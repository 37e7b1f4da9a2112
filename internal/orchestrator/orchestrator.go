// Package orchestrator validates submitted URLs, runs download jobs against
// the extraction engine in the background, and records finished jobs in the
// entry store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-media-downloader/internal/engine"
	"go-media-downloader/internal/formats"
	"go-media-downloader/internal/helpers"
	"go-media-downloader/internal/models"

	log "github.com/sirupsen/logrus"
)

// DefaultProgressThrottle is the minimum spacing between published
// progress updates of one job.
const DefaultProgressThrottle = 100 * time.Millisecond

// Classifier decides which URLs may be submitted.
type Classifier interface {
	IsValidVideoURL(url string) bool
	IsValidPlaylistURL(url string) bool
	PlatformName(url string) string
	SupportsPlaylists(url string) bool
}

// EntryWriter receives the history record of every finished job.
type EntryWriter interface {
	SaveEntry(e models.Entry) (string, error)
}

// Journal keeps terminal job snapshots across restarts.
type Journal interface {
	RecordJob(snap models.JobSnapshot) error
	MaxJobID() (int, error)
}

// Options tunes an Orchestrator. The zero value is usable.
type Options struct {
	DefaultOutputDir string
	FFmpegLocation   string
	// ProgressThrottle of 0 means DefaultProgressThrottle; a negative value
	// publishes every update.
	ProgressThrottle time.Duration
	Journal          Journal
	Now              func() time.Time
	// Hasher fingerprints the finished file. Defaults to helpers.FileHash.
	Hasher func(path string) (string, error)
	// OnUpdate is called from the job goroutine after every published
	// snapshot.
	OnUpdate func(models.JobSnapshot)
}

// Orchestrator owns the lifetime of download jobs.
type Orchestrator struct {
	engine     engine.Engine
	classifier Classifier
	store      EntryWriter
	journal    Journal
	registry   *Registry

	defaultOutputDir string
	ffmpegLocation   string
	throttle         time.Duration
	now              func() time.Time
	hasher           func(string) (string, error)
	onUpdate         func(models.JobSnapshot)

	mu     sync.Mutex
	lastID int
	wg     sync.WaitGroup
}

// New wires an orchestrator. store may be nil, in which case finished jobs
// are not recorded in history.
func New(eng engine.Engine, classifier Classifier, store EntryWriter, opts Options) *Orchestrator {
	o := &Orchestrator{
		engine:           eng,
		classifier:       classifier,
		store:            store,
		journal:          opts.Journal,
		registry:         NewRegistry(),
		defaultOutputDir: opts.DefaultOutputDir,
		ffmpegLocation:   opts.FFmpegLocation,
		throttle:         opts.ProgressThrottle,
		now:              opts.Now,
		hasher:           opts.Hasher,
		onUpdate:         opts.OnUpdate,
	}
	if o.throttle == 0 {
		o.throttle = DefaultProgressThrottle
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.hasher == nil {
		o.hasher = helpers.FileHash
	}
	if o.journal != nil {
		highest, err := o.journal.MaxJobID()
		if err != nil {
			log.WithError(err).Warn("Error reading highest journaled job ID, numbering starts at 1")
		} else {
			o.lastID = highest
		}
	}
	return o
}

// Registry exposes the job registry for read access.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Submit validates url and probes it without downloading. The result is a
// *models.VideoFormats or a *models.PlaylistInfo.
func (o *Orchestrator) Submit(ctx context.Context, url string, typ models.DownloadType) (models.SubmitResult, error) {
	if !o.engine.Available() {
		return nil, &SubmitError{Kind: ErrEngineUnavailable}
	}
	if !o.classifier.IsValidVideoURL(url) {
		return nil, &SubmitError{Kind: ErrInvalidURL, URL: url}
	}

	isPlaylist := o.classifier.IsValidPlaylistURL(url)
	wantPlaylist := typ == models.DownloadPlaylist
	switch {
	case wantPlaylist && !o.classifier.SupportsPlaylists(url):
		return nil, &SubmitError{Kind: ErrPlaylistUnsupported, Platform: o.classifier.PlatformName(url)}
	case isPlaylist && !wantPlaylist:
		return nil, &SubmitError{Kind: ErrPlaylistSubmittedAsVideo, URL: url}
	case wantPlaylist && !isPlaylist:
		return nil, &SubmitError{Kind: ErrNotAPlaylist, Platform: o.classifier.PlatformName(url)}
	}

	logger := log.WithFields(log.Fields{"url": url, "type": typ})
	logger.Debug("Probing submitted URL")

	raw, err := o.engine.ProbeFormats(ctx, url, wantPlaylist)
	if err != nil {
		if errors.Is(err, engine.ErrUnavailable) {
			return nil, &SubmitError{Kind: ErrEngineUnavailable}
		}
		logger.WithError(err).Warn("Format extraction failed")
		return nil, &SubmitError{Kind: ErrExtractionFailed, Message: err.Error()}
	}

	if wantPlaylist {
		info := formats.ParsePlaylistInfo(raw)
		logger.WithField("videos", info.VideoCount()).Info("Playlist resolved")
		return info, nil
	}

	vf := formats.ParseVideoFormats(raw)
	vf.EntryID = models.NewEntryID(o.now())
	if vf.VideoURL == "" {
		vf.VideoURL = url
	}
	logger.WithFields(log.Fields{
		"videoStreams": len(vf.VideoStreams),
		"audioStreams": len(vf.AudioStreams),
	}).Info("Video formats resolved")
	return vf, nil
}

// StartDownload registers a job and runs it in the background. It returns
// as soon as the job is in the registry.
func (o *Orchestrator) StartDownload(url string, opts models.DownloadOptions) (int, error) {
	if !o.engine.Available() {
		return 0, &SubmitError{Kind: ErrEngineUnavailable}
	}
	if !o.classifier.IsValidVideoURL(url) {
		return 0, &SubmitError{Kind: ErrInvalidURL, URL: url}
	}

	if opts.Format == "" {
		opts.Format = "best"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = o.defaultOutputDir
	}
	if opts.FFmpegLocation == "" {
		opts.FFmpegLocation = o.ffmpegLocation
	}

	snap := models.JobSnapshot{
		SourceURL: url,
		Format:    opts.Format,
		OutputDir: opts.OutputDir,
		State:     models.StatePreparing,
		UpdatedAt: o.now(),
	}

	o.mu.Lock()
	if opts.JobID > 0 {
		snap.JobID = opts.JobID
		if opts.JobID > o.lastID {
			o.lastID = opts.JobID
		}
		if !o.registry.reserve(snap) {
			o.mu.Unlock()
			return 0, fmt.Errorf("%w: %d", ErrJobInProgress, opts.JobID)
		}
	} else {
		for {
			o.lastID++
			snap.JobID = o.lastID
			if o.registry.reserve(snap) {
				break
			}
		}
	}
	o.mu.Unlock()

	j := newJob(o, snap, opts)
	if o.onUpdate != nil {
		o.onUpdate(snap)
	}
	j.lastPublish = snap.UpdatedAt

	log.WithFields(log.Fields{
		"jobId":  snap.JobID,
		"url":    url,
		"format": opts.Format,
	}).Info("Download started")

	o.wg.Add(1)
	go o.run(j)
	return snap.JobID, nil
}

func (o *Orchestrator) run(j *job) {
	defer o.wg.Done()

	if j.opts.OutputDir != "" && !helpers.CheckAndMakeDir(j.opts.OutputDir) {
		j.fail(fmt.Errorf("%w: cannot create output directory %s", ErrDownloadFailed, j.opts.OutputDir))
		return
	}

	req := engine.Request{
		URL:            j.snap.SourceURL,
		Format:         j.opts.Format,
		OutputDir:      j.opts.OutputDir,
		Subtitles:      j.opts.Subtitles,
		Captions:       j.opts.Captions,
		EmbedSubtitles: j.opts.EmbedSubtitles,
		FFmpegLocation: j.opts.FFmpegLocation,
	}

	events := make(chan engine.Event, 64)
	result := make(chan error, 1)
	go func() {
		result <- o.engine.Download(context.Background(), req, events)
		close(events)
	}()

	// A held-back update is published once it is due, even if the engine
	// goes quiet.
	var (
		in     <-chan engine.Event = events
		timer  *time.Timer
		flushC <-chan time.Time
	)
	for in != nil {
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			j.apply(ev)
			if j.dirty && flushC == nil {
				timer = time.NewTimer(j.flushDelay())
				flushC = timer.C
			}
		case <-flushC:
			flushC = nil
			if !j.dirty {
				continue
			}
			if d := j.flushDelay(); d > 0 {
				timer.Reset(d)
				flushC = timer.C
				continue
			}
			j.flush()
		}
	}
	if timer != nil {
		timer.Stop()
	}

	if err := <-result; err != nil {
		j.done(fmt.Errorf("%w: %v", ErrDownloadFailed, err))
		return
	}
	j.done(nil)
}

// GetProgress returns the latest snapshot of job id.
func (o *Orchestrator) GetProgress(id int) (models.JobSnapshot, error) {
	snap, ok := o.registry.Get(id)
	if !ok {
		return models.JobSnapshot{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return snap, nil
}

// Cancel always fails: a running engine call cannot be interrupted, so
// known jobs report ErrCancellationUnsupported.
func (o *Orchestrator) Cancel(id int) error {
	if _, ok := o.registry.Get(id); !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: job %d", ErrCancellationUnsupported, id)
}

// Jobs lists every job snapshot ordered by ID.
func (o *Orchestrator) Jobs() []models.JobSnapshot {
	return o.registry.List()
}

// Wait blocks until every started job has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
