// Package engine defines the extraction-engine capability the orchestrator
// drives, and its yt-dlp implementation.
package engine

import (
	"context"
	"errors"

	"go-media-downloader/internal/formats"
)

// ErrUnavailable is returned when the engine binary cannot be found.
var ErrUnavailable = errors.New("extraction engine is not available")

// EventKind identifies what a download Event reports.
type EventKind int

const (
	// EventInfo carries the resolved identity of the item being downloaded.
	EventInfo EventKind = iota
	// EventProgress carries incremental byte counts for the current stream.
	EventProgress
	// EventStreamFinished fires when one requested stream is fully on disk.
	EventStreamFinished
	// EventPostProcessed fires once all post-processing is done and the
	// final file is in place.
	EventPostProcessed
	// EventSubtitle reports a subtitle or caption transfer. It never counts
	// as a media stream.
	EventSubtitle
)

func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "info"
	case EventProgress:
		return "progress"
	case EventStreamFinished:
		return "stream-finished"
	case EventPostProcessed:
		return "post-processed"
	case EventSubtitle:
		return "subtitle"
	}
	return "unknown"
}

// Event is one report from a running download.
type Event struct {
	Kind       EventKind
	Downloaded int64
	Total      int64 // 0 when unknown
	Filename   string

	// EventInfo only.
	VideoID    string
	Title      string
	WebpageURL string
	Duration   float64
}

// Request describes a single download invocation. Each job builds its own.
type Request struct {
	URL            string
	Format         string
	OutputDir      string
	OutputTemplate string // defaults to "%(title)s.%(ext)s"
	Subtitles      bool
	Captions       bool
	EmbedSubtitles bool
	FFmpegLocation string
}

// Engine resolves URLs into stream descriptors and performs transfers.
type Engine interface {
	// Available reports whether the engine can be invoked at all.
	Available() bool
	// ProbeFormats fetches metadata without transferring media. flatten
	// lists playlist items without resolving each one.
	ProbeFormats(ctx context.Context, url string, flatten bool) (*formats.RawMetadata, error)
	// Download runs the transfer, publishing events until it returns. It
	// never closes events.
	Download(ctx context.Context, req Request, events chan<- Event) error
}
