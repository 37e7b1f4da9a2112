package index

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go-media-downloader/internal/models"
	"go-media-downloader/internal/platform"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "entries.bleve"

// Item is the searchable projection of a history entry. Fields are
// queryable by their JSON names, e.g. '+uploader:someone'.
type Item struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	VideoID    string `json:"videoId,omitempty"`
	Uploader   string `json:"uploader,omitempty"`
	Duration   string `json:"duration,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
	ResultPath string `json:"resultPath,omitempty"`
	Platform   string `json:"platform,omitempty"`

	// Populated by `history torrent`.
	TorrentPath string `json:"torrentPath,omitempty"`
	MagnetLink  string `json:"magnetLink,omitempty"`
}

// ItemFromEntry builds the index document for e.
func ItemFromEntry(e models.Entry) Item {
	platformName := ""
	if e.SourceURL != "" {
		platformName = platform.Name(e.SourceURL)
	}
	return Item{
		ID:         e.EntryID,
		Title:      e.Title,
		VideoID:    e.VideoID,
		Uploader:   e.Uploader,
		Duration:   e.Duration,
		SourceURL:  e.SourceURL,
		ResultPath: e.ResultPath,
		Platform:   platformName,
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Debugf("Creating new search index at %s", indexPath)
		return bleve.New(indexPath, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, err
	}
	log.Debugf("Opened search index at %s", indexPath)
	return idx, nil
}

// SearchIndex runs a query-string search and returns all stored fields.
func SearchIndex(idx bleve.Index, query string, size int) (*bleve.SearchResult, error) {
	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	req.Fields = []string{"*"}
	if size > 0 {
		req.Size = size
	}
	return idx.Search(req)
}

// DeleteIndex removes the index directory.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Debugf("Deleting search index at %s", indexPath)
	return os.RemoveAll(indexPath)
}

// EntryIndex is a concurrency-safe search index over history entries.
// It implements the store's indexer hook.
type EntryIndex struct {
	mu   sync.Mutex
	path string
	idx  bleve.Index
}

// Open opens or creates the entry index at path.
func Open(path string) (*EntryIndex, error) {
	if path == "" {
		path = defaultIndexPath
	}
	idx, err := OpenOrCreateIndex(path)
	if err != nil {
		return nil, fmt.Errorf("opening search index %s: %w", path, err)
	}
	return &EntryIndex{path: path, idx: idx}, nil
}

// IndexEntry adds or replaces the document for e.
func (x *EntryIndex) IndexEntry(e models.Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Index(e.EntryID, ItemFromEntry(e))
}

// Annotate replaces a stored item, used to attach torrent information.
func (x *EntryIndex) Annotate(item Item) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Index(item.ID, item)
}

// Search returns matching items, best first.
func (x *EntryIndex) Search(query string, size int) ([]Item, error) {
	x.mu.Lock()
	res, err := SearchIndex(x.idx, query, size)
	x.mu.Unlock()
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(res.Hits))
	for _, hit := range res.Hits {
		items = append(items, itemFromFields(hit.ID, hit.Fields))
	}
	return items, nil
}

// Count reports how many documents are indexed.
func (x *EntryIndex) Count() (uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.DocCount()
}

// Reset drops every document by recreating the index on disk.
func (x *EntryIndex) Reset() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.idx.Close(); err != nil {
		log.WithError(err).Warn("Error closing search index before reset")
	}
	if err := DeleteIndex(x.path); err != nil {
		return fmt.Errorf("removing search index: %w", err)
	}
	idx, err := OpenOrCreateIndex(x.path)
	if err != nil {
		return fmt.Errorf("recreating search index: %w", err)
	}
	x.idx = idx
	return nil
}

// Close closes the underlying index.
func (x *EntryIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Close()
}

func itemFromFields(id string, fields map[string]interface{}) Item {
	str := func(key string) string {
		if v, ok := fields[key].(string); ok {
			return v
		}
		return ""
	}
	return Item{
		ID:          id,
		Title:       str("title"),
		VideoID:     str("videoId"),
		Uploader:    str("uploader"),
		Duration:    str("duration"),
		SourceURL:   str("sourceUrl"),
		ResultPath:  str("resultPath"),
		Platform:    str("platform"),
		TorrentPath: str("torrentPath"),
		MagnetLink:  str("magnetLink"),
	}
}
