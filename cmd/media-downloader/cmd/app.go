package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"go-media-downloader/index"
	"go-media-downloader/internal/database"
	"go-media-downloader/internal/engine"
	"go-media-downloader/internal/orchestrator"
	"go-media-downloader/internal/platform"
	"go-media-downloader/internal/store"
)

// app is the composition root: every long-lived component is built here
// and handed to the commands that need it.
type app struct {
	store   *store.Store
	index   *index.EntryIndex
	journal *database.DB
	engine  *engine.YtDlp
	orch    *orchestrator.Orchestrator
}

// buildApp opens the history store, search index and job journal and wires
// them into an orchestrator. A search index that cannot be opened is logged
// and left out; the store and journal are required.
func buildApp() (*app, error) {
	a := &app{}

	a.engine = engine.NewYtDlp(globalConfig.YtDlpPath)
	a.engine.FFmpegLocation = globalConfig.FFmpegLocation
	if globalConfig.UserAgent != "" {
		a.engine.UserAgent = globalConfig.UserAgent
	}

	var storeOpts []store.Option
	idx, err := index.Open(globalConfig.SearchIndexPath)
	if err != nil {
		log.WithError(err).Warn("Search index unavailable, history will not be searchable")
	} else {
		a.index = idx
		storeOpts = append(storeOpts, store.WithIndexer(idx))
	}

	a.store, err = store.Open(globalConfig.DataDir, storeOpts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening history store at %s: %w", globalConfig.DataDir, err)
	}

	log.Debugf("Opening job journal at: %s", globalConfig.DatabasePath)
	a.journal, err = database.Open(globalConfig.DatabasePath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening job journal at %s: %w", globalConfig.DatabasePath, err)
	}

	a.orch = orchestrator.New(a.engine, platform.Classifier{}, a.store, orchestrator.Options{
		DefaultOutputDir: globalConfig.DownloadDir,
		FFmpegLocation:   globalConfig.FFmpegLocation,
		ProgressThrottle: time.Duration(globalConfig.ProgressThrottleMs) * time.Millisecond,
		Journal:          a.journal,
	})
	return a, nil
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.WithError(err).Error("Error closing job journal")
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			log.WithError(err).Error("Error closing search index")
		}
	}
}
