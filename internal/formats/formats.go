// Package formats turns raw extraction-engine metadata into the typed
// results handed back from Submit.
package formats

import (
	"encoding/json"
	"fmt"

	"go-media-downloader/internal/helpers"
	"go-media-downloader/internal/models"
)

// codecNone is the engine's sentinel for "stream has no such track".
const codecNone = "none"

type (
	// RawFormat is one stream descriptor as printed by `yt-dlp -J`.
	RawFormat struct {
		FormatID       string   `json:"format_id"`
		VCodec         *string  `json:"vcodec"`
		ACodec         *string  `json:"acodec"`
		Ext            string   `json:"ext"`
		Resolution     string   `json:"resolution"`
		Width          int      `json:"width"`
		Height         int      `json:"height"`
		FormatNote     string   `json:"format_note"`
		Filesize       *float64 `json:"filesize"`
		FilesizeApprox *float64 `json:"filesize_approx"`
		ABR            *float64 `json:"abr"`
	}

	// RawMetadata is the subset of `yt-dlp -J` output this module reads.
	// Entries is only populated for playlists.
	RawMetadata struct {
		ID         string         `json:"id"`
		Title      string         `json:"title"`
		Thumbnail  string         `json:"thumbnail"`
		Duration   *float64       `json:"duration"`
		WebpageURL string         `json:"webpage_url"`
		URL        string         `json:"url"`
		Uploader   string         `json:"uploader"`
		UploadDate string         `json:"upload_date"`
		Type       string         `json:"_type"`
		Formats    []RawFormat    `json:"formats"`
		Entries    []*RawMetadata `json:"entries"`
	}
)

// Decode parses the JSON document printed by the engine.
func Decode(data []byte) (*RawMetadata, error) {
	var raw RawMetadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding engine metadata: %w", err)
	}
	return &raw, nil
}

// UnmarshalJSON accepts format_id as either a string or a number.
func (f *RawFormat) UnmarshalJSON(data []byte) error {
	type plain RawFormat
	aux := struct {
		FormatID json.RawMessage `json:"format_id"`
		*plain
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.FormatID = ""
	if len(aux.FormatID) == 0 || string(aux.FormatID) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.FormatID, &s); err == nil {
		f.FormatID = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(aux.FormatID, &n); err != nil {
		return fmt.Errorf("format_id: %w", err)
	}
	f.FormatID = n.String()
	return nil
}

func codec(c *string) string {
	if c == nil {
		return codecNone
	}
	return *c
}

// HasVideo reports whether the descriptor carries a video track.
func (f RawFormat) HasVideo() bool {
	v := codec(f.VCodec)
	return v != "" && v != codecNone
}

// IsAudioOnly reports whether the descriptor has no video and a usable audio track.
func (f RawFormat) IsAudioOnly() bool {
	a := codec(f.ACodec)
	return codec(f.VCodec) == codecNone && a != "" && a != codecNone
}

// ResolutionLabel falls back from the explicit resolution string to
// WxH, then Hp, then the quality note, then "unknown".
func (f RawFormat) ResolutionLabel() string {
	switch {
	case f.Resolution != "":
		return f.Resolution
	case f.Height > 0 && f.Width > 0:
		return fmt.Sprintf("%dx%d", f.Width, f.Height)
	case f.Height > 0:
		return fmt.Sprintf("%dp", f.Height)
	case f.FormatNote != "":
		return f.FormatNote
	}
	return "unknown"
}

// Size falls back from the exact filesize to the approximate one, then 0.
func (f RawFormat) Size() int64 {
	if f.Filesize != nil && *f.Filesize > 0 {
		return int64(*f.Filesize)
	}
	if f.FilesizeApprox != nil && *f.FilesizeApprox > 0 {
		return int64(*f.FilesizeApprox)
	}
	return 0
}

// Bitrate returns the audio bitrate floored to an integer.
func (f RawFormat) Bitrate() int {
	if f.ABR == nil || *f.ABR <= 0 {
		return 0
	}
	return int(*f.ABR)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ParseVideoFormats partitions raw descriptors into video and audio-only
// streams. Descriptors with neither track are dropped.
func ParseVideoFormats(raw *RawMetadata) *models.VideoFormats {
	if raw == nil {
		return nil
	}
	out := &models.VideoFormats{
		VideoID:      raw.ID,
		Title:        orDefault(raw.Title, "Unknown"),
		Thumbnail:    raw.Thumbnail,
		VideoURL:     orDefault(raw.WebpageURL, raw.URL),
		Uploader:     raw.Uploader,
		UploadDate:   raw.UploadDate,
		BestFormat:   BestFormatID(raw),
		VideoStreams: []models.VideoStream{},
		AudioStreams: []models.AudioStream{},
	}
	if raw.Duration != nil {
		out.Duration = helpers.FormatDuration(*raw.Duration)
	} else {
		out.Duration = helpers.FormatDuration(0)
	}

	for _, f := range raw.Formats {
		switch {
		case f.HasVideo():
			out.VideoStreams = append(out.VideoStreams, models.VideoStream{
				FormatID:   f.FormatID,
				Codec:      codec(f.VCodec),
				Extension:  orDefault(f.Ext, "mp4"),
				Resolution: f.ResolutionLabel(),
				Filesize:   f.Size(),
			})
		case f.IsAudioOnly():
			out.AudioStreams = append(out.AudioStreams, models.AudioStream{
				FormatID:  f.FormatID,
				Codec:     codec(f.ACodec),
				Extension: orDefault(f.Ext, "mp3"),
				Bitrate:   f.Bitrate(),
				Filesize:  f.Size(),
			})
		}
	}
	return out
}

// ParsePlaylistInfo flattens a playlist document into ordered entries.
// Null entries (private or removed items) are skipped.
func ParsePlaylistInfo(raw *RawMetadata) *models.PlaylistInfo {
	if raw == nil {
		return nil
	}
	out := &models.PlaylistInfo{
		Title:      orDefault(raw.Title, "Unknown Playlist"),
		PlaylistID: raw.ID,
		Uploader:   raw.Uploader,
		Entries:    []models.PlaylistEntry{},
	}
	for _, e := range raw.Entries {
		if e == nil {
			continue
		}
		item := models.PlaylistEntry{
			ID:    e.ID,
			Title: orDefault(e.Title, "Unknown"),
			URL:   orDefault(e.URL, e.WebpageURL),
		}
		if e.Duration != nil && *e.Duration > 0 {
			item.Duration = int(*e.Duration)
		}
		out.Entries = append(out.Entries, item)
	}
	return out
}

// BestFormatID picks the video stream with the greatest height. It returns
// "" when the metadata has no video streams.
func BestFormatID(raw *RawMetadata) string {
	if raw == nil {
		return ""
	}
	best, bestHeight := "", -1
	for _, f := range raw.Formats {
		if !f.HasVideo() {
			continue
		}
		if f.Height > bestHeight {
			best, bestHeight = f.FormatID, f.Height
		}
	}
	return best
}

// StreamCount returns how many separate streams a format selector asks the
// engine to fetch: "137+140" is two, "best" is one.
func StreamCount(selector string) int {
	n := 1
	for _, r := range selector {
		if r == '+' {
			n++
		}
	}
	return n
}
