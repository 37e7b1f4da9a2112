package orchestrator

import (
	"path/filepath"
	"strings"
	"time"

	"go-media-downloader/internal/engine"
	"go-media-downloader/internal/formats"
	"go-media-downloader/internal/helpers"
	"go-media-downloader/internal/models"

	log "github.com/sirupsen/logrus"
)

// job is the state owned by one execution goroutine. Only that goroutine
// touches it; the outside world sees the copies it publishes.
type job struct {
	o        *Orchestrator
	snap     models.JobSnapshot
	opts     models.DownloadOptions
	expected int // streams the format selector asks for
	finished int // streams reported fully written

	streamPercent float64
	lastFile      string
	info          engine.Event
	haveInfo      bool

	lastPublish time.Time
	dirty       bool
}

func newJob(o *Orchestrator, snap models.JobSnapshot, opts models.DownloadOptions) *job {
	return &job{
		o:        o,
		snap:     snap,
		opts:     opts,
		expected: formats.StreamCount(snap.Format),
	}
}

func (j *job) logger() *log.Entry {
	return log.WithFields(log.Fields{"jobId": j.snap.JobID, "url": j.snap.SourceURL})
}

// publish stores the current snapshot in the registry. Unless force is set,
// updates closer together than the throttle interval are held back and the
// job is marked dirty so the next forced publish carries them.
func (j *job) publish(force bool) {
	now := j.o.now()
	if !force && j.o.throttle > 0 && !j.lastPublish.IsZero() && now.Sub(j.lastPublish) < j.o.throttle {
		j.dirty = true
		return
	}
	j.snap.UpdatedAt = now
	j.lastPublish = now
	j.dirty = false
	j.o.registry.Put(j.snap)
	if j.o.onUpdate != nil {
		j.o.onUpdate(j.snap)
	}
}

// flush publishes a held-back update, if any.
func (j *job) flush() {
	if j.dirty {
		j.publish(true)
	}
}

// flushDelay is how long a held-back update may wait before it is due.
func (j *job) flushDelay() time.Duration {
	d := j.o.throttle - j.o.now().Sub(j.lastPublish)
	if d < 0 {
		return 0
	}
	return d
}

func (j *job) apply(ev engine.Event) {
	if j.snap.State.IsTerminal() {
		j.logger().WithField("event", ev.Kind).Debug("Ignoring event after terminal state")
		return
	}

	switch ev.Kind {
	case engine.EventInfo:
		j.info = ev
		j.haveInfo = true

	case engine.EventProgress:
		if j.snap.State != models.StatePreparing && j.snap.State != models.StateDownloading {
			// Subtitles and thumbnails keep reporting after the media streams.
			return
		}
		j.snap.State = models.StateDownloading
		if ev.Filename != "" {
			j.lastFile = ev.Filename
		}
		j.snap.DownloadedBytes = ev.Downloaded
		if ev.Total > 0 {
			j.snap.TotalBytes = ev.Total
			j.streamPercent = float64(ev.Downloaded) / float64(ev.Total) * 100
			j.setPercent(j.overallPercent())
		}
		j.publish(false)

	case engine.EventSubtitle:
		j.logger().WithField("file", ev.Filename).Debug("Subtitle transfer")

	case engine.EventStreamFinished:
		if ev.Filename != "" {
			j.lastFile = ev.Filename
		}
		if j.snap.State == models.StateProcessing {
			return
		}
		j.finished++
		j.streamPercent = 0
		if j.finished < j.expected {
			j.snap.State = models.StateDownloading
			j.setPercent(j.overallPercent())
			j.publish(false)
			return
		}
		j.flush()
		j.snap.State = models.StateProcessing
		j.snap.Percent = 95
		j.publish(true)
		j.logger().Debug("All streams downloaded, post-processing")

	case engine.EventPostProcessed:
		j.flush()
		j.finish(ev.Filename)
	}
}

func (j *job) overallPercent() float64 {
	p := (float64(j.finished)*100 + j.streamPercent) / float64(j.expected)
	if p > 100 {
		p = 100
	}
	return p
}

// setPercent never moves progress backwards.
func (j *job) setPercent(p float64) {
	if p > j.snap.Percent {
		j.snap.Percent = p
	}
}

// done handles the engine call returning.
func (j *job) done(err error) {
	if err != nil {
		if j.snap.State.IsTerminal() {
			j.logger().WithError(err).Warn("Engine error after job reached a terminal state")
			return
		}
		j.flush()
		j.fail(err)
		return
	}
	if !j.snap.State.IsTerminal() {
		j.finish(j.lastFile)
	}
}

func (j *job) fail(err error) {
	j.snap.State = models.StateError
	j.snap.Percent = 0
	j.snap.Error = err.Error()
	j.publish(true)
	j.logger().WithError(err).Error("Download failed")
	j.record()
}

func (j *job) finish(path string) {
	if path == "" {
		path = j.lastFile
	}
	j.snap.State = models.StateFinished
	j.snap.Percent = 100
	j.snap.ResultPath = path
	j.publish(true)
	j.logger().WithField("path", path).Info("Download finished")

	if j.o.store != nil {
		e := j.entry(path)
		id, err := j.o.store.SaveEntry(e)
		if err != nil {
			j.logger().WithError(err).Error("Error saving history entry; download remains finished")
		} else {
			j.snap.EntryID = id
			j.publish(true)
		}
	}
	j.record()
}

// entry builds the history record from the caller's template, filling gaps
// from what the engine reported.
func (j *job) entry(path string) models.Entry {
	var e models.Entry
	if j.opts.Entry != nil {
		e = *j.opts.Entry
	}

	if e.Title == "" && j.haveInfo {
		e.Title = j.info.Title
	}
	if e.Title == "" && path != "" {
		base := filepath.Base(path)
		e.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if e.VideoID == "" && j.haveInfo {
		e.VideoID = j.info.VideoID
	}
	if e.SourceURL == "" && j.haveInfo {
		e.SourceURL = j.info.WebpageURL
	}
	if e.SourceURL == "" {
		e.SourceURL = j.snap.SourceURL
	}
	if e.VideoID == "" {
		e.VideoID = e.SourceURL
	}
	if e.Duration == "" && j.haveInfo && j.info.Duration > 0 {
		e.Duration = helpers.FormatDuration(j.info.Duration)
	}
	if e.CreatedAtMillis == 0 {
		e.CreatedAtMillis = j.o.now().UnixMilli()
	}

	e.ResultPath = path
	if path != "" && j.o.hasher != nil {
		sum, err := j.o.hasher(path)
		if err != nil {
			j.logger().WithError(err).Warn("Error hashing downloaded file")
		} else {
			e.FileHash = sum
		}
	}
	return e
}

func (j *job) record() {
	if j.o.journal == nil {
		return
	}
	if err := j.o.journal.RecordJob(j.snap); err != nil {
		j.logger().WithError(err).Warn("Error recording job in journal")
	}
}
