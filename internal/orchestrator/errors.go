package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL               = errors.New("invalid or unsupported URL")
	ErrPlaylistSubmittedAsVideo = errors.New("playlist URL submitted as a single video")
	ErrPlaylistUnsupported      = errors.New("platform does not support playlists")
	ErrNotAPlaylist             = errors.New("URL is not a playlist")
	ErrEngineUnavailable        = errors.New("extraction engine unavailable")
	ErrExtractionFailed         = errors.New("extraction failed")
	ErrDownloadFailed           = errors.New("download failed")
	ErrCancellationUnsupported  = errors.New("cancellation is not supported")
	ErrNotFound                 = errors.New("job not found")
	ErrJobInProgress            = errors.New("job ID is already in progress")
)

// SubmitError is the synchronous failure of Submit or StartDownload. It
// unwraps to one of the sentinel errors above.
type SubmitError struct {
	Kind     error
	URL      string // set for ErrInvalidURL and ErrPlaylistSubmittedAsVideo
	Platform string // set for the playlist errors
	Message  string // engine message for ErrExtractionFailed
}

func (e *SubmitError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	case e.Platform != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Platform)
	case e.URL != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.URL)
	}
	return e.Kind.Error()
}

func (e *SubmitError) Unwrap() error { return e.Kind }
