package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-downloader/index"
	"go-media-downloader/internal/models"
)

const torrentPieceLength = 512 * 1024

// torrentJob holds the parameters for one torrent worker job
type torrentJob struct {
	Entry          models.Entry
	Trackers       []string
	OutputDir      string
	Overwrite      bool
	GenerateMagnet bool
}

type torrentResult struct {
	TorrentPath string
	MagnetLink  string
}

func torrentWorker(id int, jobs <-chan torrentJob, idx *index.EntryIndex, wg *sync.WaitGroup, successCounter, failureCounter *atomic.Int64) {
	defer wg.Done()
	log.Debugf("Torrent Worker %d starting", id)
	for job := range jobs {
		fields := log.Fields{"entryId": job.Entry.EntryID, "path": job.Entry.ResultPath}
		res, err := generateTorrentFile(job.Entry.ResultPath, job.Trackers, job.OutputDir, job.Overwrite, job.GenerateMagnet)
		if err != nil {
			log.WithFields(fields).WithError(err).Errorf("Worker %d: Failed to generate torrent", id)
			failureCounter.Add(1)
			continue
		}
		successCounter.Add(1)

		if idx != nil && res.TorrentPath != "" {
			item := index.ItemFromEntry(job.Entry)
			item.TorrentPath = res.TorrentPath
			item.MagnetLink = res.MagnetLink
			if err := idx.Annotate(item); err != nil {
				log.WithFields(fields).WithError(err).Warn("Could not record torrent in search index")
			}
		}
	}
	log.Debugf("Torrent Worker %d finished", id)
}

var (
	announceURLs        []string
	torrentOutputDir    string
	overwriteTorrents   bool
	generateMagnetLinks bool
)

var historyTorrentCmd = &cobra.Command{
	Use:   "torrent [ENTRY_ID...]",
	Short: "Generate .torrent files for downloaded entries",
	Long: `Generates BitTorrent metainfo (.torrent) files for files recorded in the
download history. Without arguments every entry with a downloaded file is
processed. You must specify tracker announce URLs.`,
	RunE: runHistoryTorrent,
}

func init() {
	historyCmd.AddCommand(historyTorrentCmd)

	historyTorrentCmd.Flags().StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	historyTorrentCmd.Flags().StringVarP(&torrentOutputDir, "output-dir", "o", "", "Directory to save generated .torrent files (default: next to the downloaded file)")
	historyTorrentCmd.Flags().BoolVarP(&overwriteTorrents, "overwrite", "f", false, "Overwrite existing .torrent files")
	historyTorrentCmd.Flags().BoolVar(&generateMagnetLinks, "magnet-links", false, "Also write a -magnet.txt file next to each .torrent file")
	historyTorrentCmd.Flags().IntP("concurrency", "c", 4, "Number of concurrent torrent generation workers")
}

func runHistoryTorrent(cmd *cobra.Command, args []string) error {
	if len(announceURLs) == 0 {
		return errors.New("at least one --announce URL is required")
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		log.Warnf("Invalid concurrency value %d, defaulting to 4", concurrency)
		concurrency = 4
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	var targets []models.Entry
	if len(args) > 0 {
		for _, id := range args {
			e, err := a.store.LoadEntry(id)
			if err != nil {
				return err
			}
			targets = append(targets, e)
		}
	} else {
		targets, err = a.store.LoadAllEntries(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
	}

	jobs := make(chan torrentJob, concurrency)
	var wg sync.WaitGroup
	var successCounter, failureCounter atomic.Int64
	for i := 1; i <= concurrency; i++ {
		wg.Add(1)
		go torrentWorker(i, jobs, a.index, &wg, &successCounter, &failureCounter)
	}

	queued := 0
	for _, e := range targets {
		if e.ResultPath == "" {
			log.WithField("entryId", e.EntryID).Debug("Skipping entry without a downloaded file")
			continue
		}
		jobs <- torrentJob{
			Entry:          e,
			Trackers:       announceURLs,
			OutputDir:      torrentOutputDir,
			Overwrite:      overwriteTorrents,
			GenerateMagnet: generateMagnetLinks,
		}
		queued++
	}
	close(jobs)
	wg.Wait()

	if queued == 0 {
		log.Info("No downloaded files found in history.")
		return nil
	}
	log.Infof("Torrent generation complete. Success: %d, Failed: %d", successCounter.Load(), failureCounter.Load())
	if n := failureCounter.Load(); n > 0 {
		return fmt.Errorf("%d torrents failed to generate", n)
	}
	return nil
}

// generateTorrentFile creates a single-file .torrent for sourcePath and
// optionally a text file holding its magnet link.
func generateTorrentFile(sourcePath string, trackers []string, outputDir string, overwrite bool, generateMagnetLinks bool) (torrentResult, error) {
	var res torrentResult
	stat, err := os.Stat(sourcePath)
	if os.IsNotExist(err) {
		return res, fmt.Errorf("source file does not exist: %s", sourcePath)
	} else if err != nil {
		return res, fmt.Errorf("error stating source file %s: %w", sourcePath, err)
	} else if stat.IsDir() {
		return res, fmt.Errorf("source path is a directory: %s", sourcePath)
	}

	torrentFileName := strings.TrimSuffix(stat.Name(), filepath.Ext(stat.Name())) + ".torrent"
	outPath := filepath.Join(filepath.Dir(sourcePath), torrentFileName)
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return res, fmt.Errorf("error creating output directory %s: %w", outputDir, err)
		}
		outPath = filepath.Join(outputDir, torrentFileName)
	}

	if _, err := os.Stat(outPath); err == nil {
		if !overwrite {
			log.WithField("path", outPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			return res, nil
		}
		log.WithField("path", outPath).Warn("Overwriting existing torrent file")
	}

	mi := metainfo.MetaInfo{
		AnnounceList: make([][]string, len(trackers)),
	}
	for i, tracker := range trackers {
		mi.AnnounceList[i] = []string{tracker}
	}
	if len(trackers) > 0 {
		mi.Announce = trackers[0]
	}
	mi.CreatedBy = "go-media-downloader"

	info := metainfo.Info{PieceLength: torrentPieceLength}
	if err := info.BuildFromFilePath(sourcePath); err != nil {
		return res, fmt.Errorf("error building torrent info from %s: %w", sourcePath, err)
	}
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return res, fmt.Errorf("error marshaling torrent info: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return res, fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	if err := mi.Write(f); err != nil {
		f.Close()
		return res, fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("error closing torrent file %s: %w", outPath, err)
	}
	res.TorrentPath = outPath
	log.WithField("path", outPath).Info("Generated torrent file")

	magnetParts := []string{
		fmt.Sprintf("magnet:?xt=urn:btih:%s", mi.HashInfoBytes().HexString()),
		fmt.Sprintf("dn=%s", url.QueryEscape(stat.Name())),
	}
	for _, tracker := range trackers {
		magnetParts = append(magnetParts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
	}
	res.MagnetLink = strings.Join(magnetParts, "&")

	if generateMagnetLinks {
		magnetOutPath := strings.TrimSuffix(outPath, ".torrent") + "-magnet.txt"
		if err := os.WriteFile(magnetOutPath, []byte(res.MagnetLink), 0644); err != nil {
			log.WithError(err).WithField("path", magnetOutPath).Error("Failed to write magnet link file")
		} else {
			log.WithField("path", magnetOutPath).Info("Generated magnet link file")
		}
	}
	return res, nil
}
