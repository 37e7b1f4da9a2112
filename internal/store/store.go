// Package store persists history entries as one directory per entry plus a
// summary index.json used for listing and deduplication.
//
// Layout under the store root:
//
//	index.json                   summary rows, one per entry
//	index.json.lock              cross-process lock for index read-modify-write
//	entries/<entryId>/metadata.json
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go-media-downloader/internal/models"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	indexFileName    = "index.json"
	entriesDirName   = "entries"
	metadataFileName = "metadata.json"

	loadConcurrency = 8
)

var (
	// ErrStorageWriteFailed wraps any filesystem failure while saving or clearing.
	ErrStorageWriteFailed = errors.New("storage write failed")
	// ErrEntryNotFound is returned when an entry record does not exist.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInvalidEntry is returned for entries without a title or video ID, or
	// with an entry ID that cannot name a directory.
	ErrInvalidEntry = models.ErrInvalidEntry
)

// Indexer is notified after entries are saved and after the store is cleared.
// Failures are logged and never fail the store operation.
type Indexer interface {
	IndexEntry(e models.Entry) error
	Reset() error
}

// Store is the entry-based persistent store. It is safe for concurrent use
// within a process, and index updates are serialized across processes with
// a file lock.
type Store struct {
	root    string
	mu      sync.Mutex
	lock    *flock.Flock
	indexer Indexer
	now     func() time.Time
	write   func(path string, v any) error
}

// Option configures a Store.
type Option func(*Store)

// WithIndexer attaches a search indexer.
func WithIndexer(ix Indexer) Option {
	return func(s *Store) { s.indexer = ix }
}

// WithClock overrides the time source used for generated IDs and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open prepares the store directories under root.
func Open(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("store root is required")
	}
	s := &Store{root: root, now: time.Now, write: writeJSON}
	for _, opt := range opts {
		opt(s)
	}
	if err := mkdir(s.entriesDir()); err != nil {
		return nil, err
	}
	s.lock = flock.New(s.IndexPath() + ".lock")
	log.WithField("root", root).Debug("Entry store opened")
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// IndexPath returns the path of index.json.
func (s *Store) IndexPath() string { return filepath.Join(s.root, indexFileName) }

func (s *Store) entriesDir() string { return filepath.Join(s.root, entriesDirName) }

// EntryDir returns the directory holding entryID's record.
func (s *Store) EntryDir(entryID string) string {
	return filepath.Join(s.entriesDir(), entryID)
}

func (s *Store) metadataPath(entryID string) string {
	return filepath.Join(s.EntryDir(entryID), metadataFileName)
}

// withIndexLock runs fn holding both the in-process mutex and the
// cross-process file lock.
func (s *Store) withIndexLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("%w: locking index: %v", ErrStorageWriteFailed, err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			log.WithError(err).Warn("Error releasing index lock")
		}
	}()
	return fn()
}

func validEntryID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// SaveEntry creates or updates e and returns the entry ID it was stored
// under. An empty EntryID is generated. If no row carries e's EntryID but a
// row carries the same non-empty VideoID, that row's EntryID is reused and
// its record overwritten.
func (s *Store) SaveEntry(e models.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.EntryID == "" {
		e.EntryID = models.NewEntryID(s.now())
	} else if !validEntryID(e.EntryID) {
		return "", fmt.Errorf("%w: entry ID %q", ErrInvalidEntry, e.EntryID)
	}
	if e.CreatedAtMillis == 0 {
		e.CreatedAtMillis = s.now().UnixMilli()
	}

	err := s.withIndexLock(func() error {
		rows, err := s.readIndex()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
		}

		rows, stale := upsertRow(rows, &e)

		_, statErr := os.Stat(s.EntryDir(e.EntryID))
		created := errors.Is(statErr, os.ErrNotExist)

		if err := s.write(s.metadataPath(e.EntryID), e); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
		}
		if err := s.write(s.IndexPath(), rows); err != nil {
			if created {
				if rmErr := os.RemoveAll(s.EntryDir(e.EntryID)); rmErr != nil {
					log.WithError(rmErr).WithField("entryId", e.EntryID).Warn("Error removing unindexed entry directory")
				}
			}
			return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
		}
		for _, id := range stale {
			if err := os.RemoveAll(s.EntryDir(id)); err != nil {
				log.WithError(err).WithField("entryId", id).Warn("Error removing superseded entry directory")
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.WithFields(log.Fields{"entryId": e.EntryID, "videoId": e.VideoID}).Debug("Entry saved")
	if s.indexer != nil {
		if err := s.indexer.IndexEntry(e); err != nil {
			log.WithError(err).WithField("entryId", e.EntryID).Warn("Error indexing entry for search")
		}
	}
	return e.EntryID, nil
}

// upsertRow applies e to rows following the identity rules. It may rewrite
// e.EntryID to an existing row's ID. It returns the new rows and the IDs of
// rows dropped because another row now owns their VideoID.
func upsertRow(rows []models.IndexRow, e *models.Entry) ([]models.IndexRow, []string) {
	pos := -1
	for i, r := range rows {
		if r.EntryID == e.EntryID {
			pos = i
			break
		}
	}
	if pos < 0 && e.VideoID != "" {
		for i, r := range rows {
			if r.VideoID == e.VideoID {
				pos = i
				e.EntryID = r.EntryID
				break
			}
		}
	}

	if pos >= 0 {
		rows[pos] = e.Row()
	} else {
		rows = append(rows, e.Row())
	}

	// An ID match may have moved this entry onto a VideoID another row holds.
	var stale []string
	if e.VideoID != "" {
		kept := rows[:0]
		for _, r := range rows {
			if r.VideoID == e.VideoID && r.EntryID != e.EntryID {
				stale = append(stale, r.EntryID)
				continue
			}
			kept = append(kept, r)
		}
		rows = kept
	}
	return rows, stale
}

// SaveEntries saves each entry in order and returns the IDs they were
// stored under. It stops at the first failure.
func (s *Store) SaveEntries(entries []models.Entry) ([]string, error) {
	ids := make([]string, 0, len(entries))
	for i, e := range entries {
		id, err := s.SaveEntry(e)
		if err != nil {
			return ids, fmt.Errorf("entry %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) readIndex() ([]models.IndexRow, error) {
	rows := []models.IndexRow{}
	if err := readJSON(s.IndexPath(), &rows); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.IndexRow{}, nil
		}
		return nil, err
	}
	return rows, nil
}

// LoadIndex returns the summary rows in insertion order.
func (s *Store) LoadIndex() ([]models.IndexRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

// LoadEntry reads the full record for entryID.
func (s *Store) LoadEntry(entryID string) (models.Entry, error) {
	if !validEntryID(entryID) {
		return models.Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	var e models.Entry
	if err := readJSON(s.metadataPath(entryID), &e); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
		}
		return models.Entry{}, err
	}
	return e, nil
}

// FindByVideoID returns the index row carrying videoID, if any.
func (s *Store) FindByVideoID(videoID string) (models.IndexRow, bool, error) {
	if videoID == "" {
		return models.IndexRow{}, false, nil
	}
	rows, err := s.LoadIndex()
	if err != nil {
		return models.IndexRow{}, false, err
	}
	for _, r := range rows {
		if r.VideoID == videoID {
			return r, true, nil
		}
	}
	return models.IndexRow{}, false, nil
}

// LoadAllEntries returns every entry listed in the index, newest
// CreatedAtMillis first. Rows whose record is missing or unreadable are
// logged and skipped.
func (s *Store) LoadAllEntries(ctx context.Context) ([]models.Entry, error) {
	rows, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}

	// Later rows win ties, matching append order.
	order := make([]int, len(rows))
	for i := range order {
		order[i] = len(rows) - 1 - i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rows[order[a]].CreatedAtMillis > rows[order[b]].CreatedAtMillis
	})

	loaded := make([]*models.Entry, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for slot, rowIdx := range order {
		slot := slot
		id := rows[rowIdx].EntryID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := s.LoadEntry(id)
			if err != nil {
				log.WithError(err).WithField("entryId", id).Warn("Skipping unreadable entry")
				return nil
			}
			loaded[slot] = &e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(loaded))
	for _, e := range loaded {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

// ClearAll empties the index and removes every entry directory.
func (s *Store) ClearAll() error {
	err := s.withIndexLock(func() error {
		if err := s.write(s.IndexPath(), []models.IndexRow{}); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
		}
		if err := os.RemoveAll(s.entriesDir()); err != nil {
			return fmt.Errorf("%w: removing entries: %v", ErrStorageWriteFailed, err)
		}
		if err := mkdir(s.entriesDir()); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Download history cleared")
	if s.indexer != nil {
		if err := s.indexer.Reset(); err != nil {
			log.WithError(err).Warn("Error resetting search index")
		}
	}
	return nil
}
