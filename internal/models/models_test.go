package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{"Title only", Entry{Title: "Clip"}, false},
		{"Video ID only", Entry{VideoID: "abc"}, false},
		{"Both", Entry{Title: "Clip", VideoID: "abc"}, false},
		{"Neither", Entry{EntryID: "entry_1_x"}, true},
		{"Whitespace only", Entry{Title: "  ", VideoID: "\t"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntry)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeEntry(t *testing.T) {
	t.Run("Valid record", func(t *testing.T) {
		e, err := DecodeEntry([]byte(`{"entryId":"entry_1_a","videoId":"dQw4","title":"Song","formats":{"videoCodecs":["avc1"],"selectedVideoIndex":0,"selectedAudioIndex":-1},"sequenceIndex":3,"createdAtMillis":42}`))
		require.NoError(t, err)
		assert.Equal(t, "entry_1_a", e.EntryID)
		assert.Equal(t, "dQw4", e.VideoID)
		assert.Equal(t, []string{"avc1"}, e.Formats.VideoCodecs)
		assert.Equal(t, -1, e.Formats.SelectedAudioIndex)
		assert.Equal(t, 3, e.SequenceIndex)
		assert.EqualValues(t, 42, e.CreatedAtMillis)
	})

	t.Run("Unknown field rejected", func(t *testing.T) {
		_, err := DecodeEntry([]byte(`{"title":"x","vTitle":"y"}`))
		assert.Error(t, err)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		_, err := DecodeEntry([]byte(`{"title":`))
		assert.Error(t, err)
	})

	t.Run("No identity", func(t *testing.T) {
		_, err := DecodeEntry([]byte(`{"duration":"01:00"}`))
		assert.ErrorIs(t, err, ErrInvalidEntry)
	})
}

func TestVideoFormatsEntry(t *testing.T) {
	v := &VideoFormats{
		EntryID:  "entry_5_z",
		VideoID:  "xyz",
		Title:    "Title",
		VideoURL: "https://www.youtube.com/watch?v=xyz",
		VideoStreams: []VideoStream{
			{FormatID: "137", Codec: "avc1", Extension: "mp4", Resolution: "1920x1080", Filesize: 100},
		},
		AudioStreams: []AudioStream{
			{FormatID: "140", Codec: "mp4a", Extension: "m4a", Bitrate: 128, Filesize: 10},
		},
	}
	e := v.Entry()
	assert.Equal(t, "entry_5_z", e.EntryID)
	assert.Equal(t, "xyz", e.VideoID)
	assert.Equal(t, v.VideoURL, e.SourceURL)
	assert.Equal(t, []string{"137"}, e.Formats.VideoFormatIDs)
	assert.Equal(t, []string{"1920x1080"}, e.Formats.Resolutions)
	assert.Equal(t, []int{128}, e.Formats.AudioBitrates)
	assert.Equal(t, []int64{10}, e.Formats.AudioSizes)
	assert.Equal(t, DownloadVideo, v.Kind())
	assert.Equal(t, DownloadPlaylist, (&PlaylistInfo{}).Kind())
}

func TestJobStateJSON(t *testing.T) {
	for state, name := range jobStateNames {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(state)
			require.NoError(t, err)
			assert.JSONEq(t, `"`+name+`"`, string(data))

			var back JobState
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, state, back)
		})
	}

	var s JobState
	assert.Error(t, json.Unmarshal([]byte(`"paused"`), &s))
}

func TestJobStateTerminal(t *testing.T) {
	assert.False(t, StatePreparing.IsTerminal())
	assert.False(t, StateDownloading.IsTerminal())
	assert.False(t, StateProcessing.IsTerminal())
	assert.True(t, StateFinished.IsTerminal())
	assert.True(t, StateError.IsTerminal())
	assert.True(t, StateDownloading.IsActive())
	assert.Equal(t, "JobState(9)", JobState(9).String())
}
