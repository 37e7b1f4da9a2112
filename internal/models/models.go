package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEntry is returned when an entry carries neither a title nor a video ID.
var ErrInvalidEntry = errors.New("invalid entry: title and video ID are both empty")

type (
	Config struct {
		// Paths
		DataDir         string `toml:"DataDir"`         // Entry store root (index.json + entries/)
		DownloadDir     string `toml:"DownloadDir"`     // Default output directory for downloads
		DatabasePath    string `toml:"DatabasePath"`    // Bitcask job journal
		SearchIndexPath string `toml:"SearchIndexPath"` // Bleve index over entries

		// Extraction engine
		YtDlpPath      string `toml:"YtDlpPath"`
		FFmpegLocation string `toml:"FFmpegLocation"`
		UserAgent      string `toml:"UserAgent"`

		// Orchestrator behavior
		ProgressThrottleMs int `toml:"ProgressThrottleMs"`

		// Other
		LogLevel  string `toml:"LogLevel"`
		LogFormat string `toml:"LogFormat"`
	}

	// Entry is the durable history record of a resolved or downloaded item.
	Entry struct {
		EntryID         string       `json:"entryId"`
		VideoID         string       `json:"videoId"`
		Title           string       `json:"title"`
		ThumbnailPath   string       `json:"thumbnailPath,omitempty"`
		Duration        string       `json:"duration,omitempty"`
		Uploader        string       `json:"uploader,omitempty"`
		SourceURL       string       `json:"sourceUrl,omitempty"`
		ResultPath      string       `json:"resultPath,omitempty"`
		FileHash        string       `json:"fileHash,omitempty"` // BLAKE3 of ResultPath, upper-case hex
		Formats         EntryFormats `json:"formats"`
		SequenceIndex   int          `json:"sequenceIndex"`
		CreatedAtMillis int64        `json:"createdAtMillis"`
	}

	// EntryFormats holds the probed format lists as the UI handed them over.
	// The store never interprets them.
	EntryFormats struct {
		VideoFormatIDs     []string `json:"videoFormatIds,omitempty"`
		VideoCodecs        []string `json:"videoCodecs,omitempty"`
		VideoExtensions    []string `json:"videoExtensions,omitempty"`
		Resolutions        []string `json:"resolutions,omitempty"`
		VideoSizes         []int64  `json:"videoSizes,omitempty"`
		AudioFormatIDs     []string `json:"audioFormatIds,omitempty"`
		AudioCodecs        []string `json:"audioCodecs,omitempty"`
		AudioExtensions    []string `json:"audioExtensions,omitempty"`
		AudioBitrates      []int    `json:"audioBitrates,omitempty"`
		AudioSizes         []int64  `json:"audioSizes,omitempty"`
		SelectedVideoIndex int      `json:"selectedVideoIndex"`
		SelectedAudioIndex int      `json:"selectedAudioIndex"`
		SelectedVideoCodec string   `json:"selectedVideoCodec,omitempty"`
		SelectedAudioCodec string   `json:"selectedAudioCodec,omitempty"`
	}

	// IndexRow is the summary projection of an Entry kept in index.json.
	IndexRow struct {
		EntryID         string `json:"entryId"`
		Title           string `json:"title"`
		VideoID         string `json:"videoId"`
		CreatedAtMillis int64  `json:"createdAtMillis"`
		SequenceIndex   int    `json:"sequenceIndex"`
	}
)

// Validate checks the one rule every stored entry must satisfy.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.VideoID) == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Row projects the entry into its index summary.
func (e Entry) Row() IndexRow {
	return IndexRow{
		EntryID:         e.EntryID,
		Title:           e.Title,
		VideoID:         e.VideoID,
		CreatedAtMillis: e.CreatedAtMillis,
		SequenceIndex:   e.SequenceIndex,
	}
}

// NewEntryID returns a fresh entry ID of the form entry_<unixMillis>_<suffix>.
func NewEntryID(now time.Time) string {
	return fmt.Sprintf("entry_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// DecodeEntry turns a record handed over by the UI layer into a typed Entry.
// Unknown fields are rejected so malformed payloads fail here and nowhere else.
func DecodeEntry(data []byte) (Entry, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	var e Entry
	if err := dec.Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// DownloadType selects how a submitted URL is interpreted.
type DownloadType int

const (
	DownloadVideo DownloadType = iota
	DownloadPlaylist
)

func (t DownloadType) String() string {
	if t == DownloadPlaylist {
		return "playlist"
	}
	return "video"
}

// DownloadOptions configures a single StartDownload call.
type DownloadOptions struct {
	JobID          int    // 0 lets the orchestrator assign one
	Format         string // format selector, e.g. "137+140"; "best" when empty
	OutputDir      string // empty uses the configured download directory
	Subtitles      bool
	Captions       bool
	EmbedSubtitles bool
	FFmpegLocation string // overrides the configured ffmpeg location
	Entry          *Entry // history template filled in when the job finishes
}

// VideoStream is one downloadable stream that carries video.
type VideoStream struct {
	FormatID   string `json:"formatId"`
	Codec      string `json:"codec"`
	Extension  string `json:"extension"`
	Resolution string `json:"resolution"`
	Filesize   int64  `json:"filesize"`
}

// AudioStream is one audio-only stream.
type AudioStream struct {
	FormatID  string `json:"formatId"`
	Codec     string `json:"codec"`
	Extension string `json:"extension"`
	Bitrate   int    `json:"bitrate"`
	Filesize  int64  `json:"filesize"`
}

// SubmitResult is either *VideoFormats or *PlaylistInfo.
type SubmitResult interface {
	Kind() DownloadType
}

// VideoFormats is the Submit result for a single video.
type VideoFormats struct {
	EntryID      string        `json:"entryId"`
	VideoID      string        `json:"videoId"`
	Title        string        `json:"title"`
	Thumbnail    string        `json:"thumbnail"`
	Duration     string        `json:"duration"`
	VideoURL     string        `json:"videoUrl"`
	Uploader     string        `json:"uploader"`
	UploadDate   string        `json:"uploadDate"`
	BestFormat   string        `json:"bestFormat,omitempty"` // tallest video stream
	VideoStreams []VideoStream `json:"videoStreams"`
	AudioStreams []AudioStream `json:"audioStreams"`
}

func (*VideoFormats) Kind() DownloadType { return DownloadVideo }

// Entry builds the history template for this video. The caller picks the
// selected stream indexes before handing it back through DownloadOptions.
func (v *VideoFormats) Entry() Entry {
	e := Entry{
		EntryID:   v.EntryID,
		VideoID:   v.VideoID,
		Title:     v.Title,
		Duration:  v.Duration,
		Uploader:  v.Uploader,
		SourceURL: v.VideoURL,
	}
	for _, s := range v.VideoStreams {
		e.Formats.VideoFormatIDs = append(e.Formats.VideoFormatIDs, s.FormatID)
		e.Formats.VideoCodecs = append(e.Formats.VideoCodecs, s.Codec)
		e.Formats.VideoExtensions = append(e.Formats.VideoExtensions, s.Extension)
		e.Formats.Resolutions = append(e.Formats.Resolutions, s.Resolution)
		e.Formats.VideoSizes = append(e.Formats.VideoSizes, s.Filesize)
	}
	for _, s := range v.AudioStreams {
		e.Formats.AudioFormatIDs = append(e.Formats.AudioFormatIDs, s.FormatID)
		e.Formats.AudioCodecs = append(e.Formats.AudioCodecs, s.Codec)
		e.Formats.AudioExtensions = append(e.Formats.AudioExtensions, s.Extension)
		e.Formats.AudioBitrates = append(e.Formats.AudioBitrates, s.Bitrate)
		e.Formats.AudioSizes = append(e.Formats.AudioSizes, s.Filesize)
	}
	return e
}

// PlaylistEntry is one item of a flattened playlist.
type PlaylistEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Duration int    `json:"duration"`
}

// PlaylistInfo is the Submit result for a playlist.
type PlaylistInfo struct {
	Title      string          `json:"title"`
	PlaylistID string          `json:"playlistId"`
	Uploader   string          `json:"uploader"`
	Entries    []PlaylistEntry `json:"entries"`
}

func (*PlaylistInfo) Kind() DownloadType { return DownloadPlaylist }

// VideoCount reports the number of usable playlist items.
func (p *PlaylistInfo) VideoCount() int { return len(p.Entries) }

// JobSnapshot is the polled view of a job. Snapshots are values: the
// registry replaces them whole and hands out copies.
type JobSnapshot struct {
	JobID           int       `json:"jobId"`
	SourceURL       string    `json:"sourceUrl"`
	Format          string    `json:"format"`
	OutputDir       string    `json:"outputDir"`
	State           JobState  `json:"state"`
	Percent         float64   `json:"percent"`
	DownloadedBytes int64     `json:"downloadedBytes"`
	TotalBytes      int64     `json:"totalBytes"`
	UpdatedAt       time.Time `json:"updatedAt"`
	ResultPath      string    `json:"resultPath,omitempty"`
	EntryID         string    `json:"entryId,omitempty"`
	Error           string    `json:"error,omitempty"`
}
