package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const videoDoc = `{
	"id": "dQw4w9WgXcQ",
	"title": "Never Gonna",
	"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg",
	"duration": 212.0,
	"webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	"uploader": "Rick",
	"upload_date": "20091025",
	"formats": [
		{"format_id": "sb0", "vcodec": "none", "acodec": "none", "ext": "mhtml"},
		{"format_id": "140", "vcodec": "none", "acodec": "mp4a.40.2", "ext": "m4a", "abr": 129.478, "filesize": 3433514},
		{"format_id": "251", "vcodec": "none", "acodec": "opus", "ext": "webm", "abr": 135.9, "filesize_approx": 3600000.7},
		{"format_id": "137", "vcodec": "avc1.640028", "acodec": "none", "ext": "mp4", "resolution": "1920x1080", "filesize": 80000000},
		{"format_id": "248", "vcodec": "vp9", "acodec": "none", "ext": "webm", "width": 1920, "height": 1080},
		{"format_id": "160", "vcodec": "avc1", "acodec": "none", "height": 144},
		{"format_id": "hls", "vcodec": "avc1", "acodec": "mp4a", "ext": "mp4", "format_note": "medium"},
		{"format_id": 18, "vcodec": "avc1", "acodec": "mp4a"},
		{"format_id": "x", "vcodec": "", "acodec": "mp4a"}
	]
}`

func TestParseVideoFormats(t *testing.T) {
	raw, err := Decode([]byte(videoDoc))
	require.NoError(t, err)

	got := ParseVideoFormats(raw)
	require.NotNil(t, got)

	assert.Equal(t, "dQw4w9WgXcQ", got.VideoID)
	assert.Equal(t, "Never Gonna", got.Title)
	assert.Equal(t, "03:32", got.Duration)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", got.VideoURL)
	assert.Equal(t, "20091025", got.UploadDate)
	assert.Equal(t, "248", got.BestFormat)

	require.Len(t, got.VideoStreams, 5)
	tests := []struct {
		formatID   string
		codec      string
		ext        string
		resolution string
		size       int64
	}{
		{"137", "avc1.640028", "mp4", "1920x1080", 80000000},
		{"248", "vp9", "webm", "1920x1080", 0},
		{"160", "avc1", "mp4", "144p", 0},
		{"hls", "avc1", "mp4", "medium", 0},
		{"18", "avc1", "mp4", "unknown", 0},
	}
	for i, tt := range tests {
		t.Run("video "+tt.formatID, func(t *testing.T) {
			s := got.VideoStreams[i]
			assert.Equal(t, tt.formatID, s.FormatID)
			assert.Equal(t, tt.codec, s.Codec)
			assert.Equal(t, tt.ext, s.Extension)
			assert.Equal(t, tt.resolution, s.Resolution)
			assert.Equal(t, tt.size, s.Filesize)
		})
	}

	require.Len(t, got.AudioStreams, 2)
	assert.Equal(t, "140", got.AudioStreams[0].FormatID)
	assert.Equal(t, 129, got.AudioStreams[0].Bitrate)
	assert.EqualValues(t, 3433514, got.AudioStreams[0].Filesize)
	assert.Equal(t, "opus", got.AudioStreams[1].Codec)
	assert.Equal(t, 135, got.AudioStreams[1].Bitrate)
	assert.EqualValues(t, 3600000, got.AudioStreams[1].Filesize)
}

func TestParseVideoFormatsDefaults(t *testing.T) {
	raw, err := Decode([]byte(`{"url": "https://vimeo.com/1", "formats": [{"format_id": "a", "acodec": "aac"}]}`))
	require.NoError(t, err)

	got := ParseVideoFormats(raw)
	assert.Equal(t, "Unknown", got.Title)
	assert.Equal(t, "00:00", got.Duration)
	assert.Equal(t, "https://vimeo.com/1", got.VideoURL)
	assert.Empty(t, got.VideoStreams)
	require.Len(t, got.AudioStreams, 1, "missing vcodec counts as none")
	assert.Equal(t, "mp3", got.AudioStreams[0].Extension)
	assert.Equal(t, 0, got.AudioStreams[0].Bitrate)

	assert.Nil(t, ParseVideoFormats(nil))
}

func TestParsePlaylistInfo(t *testing.T) {
	raw, err := Decode([]byte(`{
		"_type": "playlist",
		"id": "PL123",
		"uploader": "Someone",
		"entries": [
			{"id": "a", "title": "First", "url": "https://www.youtube.com/watch?v=a", "duration": 61.5},
			null,
			{"id": "b", "webpage_url": "https://www.youtube.com/watch?v=b"}
		]
	}`))
	require.NoError(t, err)

	got := ParsePlaylistInfo(raw)
	require.NotNil(t, got)
	assert.Equal(t, "Unknown Playlist", got.Title)
	assert.Equal(t, "PL123", got.PlaylistID)
	assert.Equal(t, 2, got.VideoCount())
	assert.Equal(t, "First", got.Entries[0].Title)
	assert.Equal(t, 61, got.Entries[0].Duration)
	assert.Equal(t, "Unknown", got.Entries[1].Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=b", got.Entries[1].URL)
	assert.Equal(t, 0, got.Entries[1].Duration)

	assert.Nil(t, ParsePlaylistInfo(nil))
}

func TestBestFormatID(t *testing.T) {
	raw, err := Decode([]byte(videoDoc))
	require.NoError(t, err)
	assert.Equal(t, "248", BestFormatID(raw), "tallest explicit height wins")

	assert.Equal(t, "", BestFormatID(&RawMetadata{}))
	assert.Equal(t, "", BestFormatID(nil))
}

func TestStreamCount(t *testing.T) {
	assert.Equal(t, 1, StreamCount("best"))
	assert.Equal(t, 1, StreamCount(""))
	assert.Equal(t, 2, StreamCount("137+140"))
	assert.Equal(t, 3, StreamCount("137+140+251"))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("ERROR: not json"))
	assert.Error(t, err)
}
