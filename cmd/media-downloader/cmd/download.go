package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-downloader/internal/helpers"
	"go-media-downloader/internal/models"
	"go-media-downloader/internal/orchestrator"
)

const pollInterval = 250 * time.Millisecond

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download [URL...]",
	Short: "Download one or more videos, or every item of a playlist",
	Long: `Starts one background job per URL and follows their progress until every
job has finished or failed. Finished downloads are recorded in the history
store; downloading the same video again updates its existing entry.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringP("format", "f", "", "yt-dlp format selector, e.g. 137+140 (default \"best\")")
	downloadCmd.Flags().StringP("output-dir", "o", "", "Directory to save into (default: configured DownloadDir)")
	downloadCmd.Flags().Bool("subs", false, "Download subtitles")
	downloadCmd.Flags().Bool("captions", false, "Download automatic captions (implies --subs)")
	downloadCmd.Flags().Bool("embed-subs", false, "Embed downloaded subtitles into the video")
	downloadCmd.Flags().Int("job-id", 0, "Use this job ID instead of the next free one (single URL only)")
	downloadCmd.Flags().Bool("playlist", false, "Treat the URL as a playlist and download every item")
	downloadCmd.Flags().Bool("probe", true, "Probe metadata first so the history entry carries the stream list")
}

func runDownload(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	subs, _ := cmd.Flags().GetBool("subs")
	captions, _ := cmd.Flags().GetBool("captions")
	embed, _ := cmd.Flags().GetBool("embed-subs")
	jobID, _ := cmd.Flags().GetInt("job-id")
	playlist, _ := cmd.Flags().GetBool("playlist")
	probe, _ := cmd.Flags().GetBool("probe")

	if jobID != 0 && (len(args) > 1 || playlist) {
		return errors.New("--job-id can only be used with a single video URL")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	base := models.DownloadOptions{
		Format:         format,
		OutputDir:      outputDir,
		Subtitles:      subs,
		Captions:       captions,
		EmbedSubtitles: embed,
		JobID:          jobID,
	}

	type target struct {
		url   string
		entry *models.Entry
	}
	var targets []target

	for _, url := range args {
		if playlist {
			res, err := a.orch.Submit(cmd.Context(), url, models.DownloadPlaylist)
			if err != nil {
				return err
			}
			info := res.(*models.PlaylistInfo)
			log.Infof("Playlist %q: queuing %d videos", info.Title, info.VideoCount())
			for i, item := range info.Entries {
				targets = append(targets, target{url: item.URL, entry: &models.Entry{
					VideoID:       item.ID,
					Title:         item.Title,
					SourceURL:     item.URL,
					Duration:      helpers.FormatDuration(float64(item.Duration)),
					SequenceIndex: i,
				}})
			}
			continue
		}

		t := target{url: url}
		if probe {
			res, err := a.orch.Submit(cmd.Context(), url, models.DownloadVideo)
			if err != nil {
				if errors.Is(err, orchestrator.ErrPlaylistSubmittedAsVideo) {
					return fmt.Errorf("%w (use --playlist)", err)
				}
				return err
			}
			e := res.(*models.VideoFormats).Entry()
			selectFormats(&e, format)
			t.entry = &e
		}
		targets = append(targets, t)
	}

	var ids []int
	for _, t := range targets {
		opts := base
		opts.Entry = t.entry
		id, err := a.orch.StartDownload(t.url, opts)
		if err != nil {
			log.WithError(err).WithField("url", t.url).Error("Could not start download")
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return errors.New("no downloads were started")
	}

	failed := watchJobs(a.orch, ids)
	a.orch.Wait()
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(ids))
	}
	return nil
}

// selectFormats records which probed streams the format selector picked.
func selectFormats(e *models.Entry, selector string) {
	e.Formats.SelectedVideoIndex = -1
	e.Formats.SelectedAudioIndex = -1
	for _, id := range strings.Split(selector, "+") {
		for i, v := range e.Formats.VideoFormatIDs {
			if v == id {
				e.Formats.SelectedVideoIndex = i
				e.Formats.SelectedVideoCodec = e.Formats.VideoCodecs[i]
			}
		}
		for i, v := range e.Formats.AudioFormatIDs {
			if v == id {
				e.Formats.SelectedAudioIndex = i
				e.Formats.SelectedAudioCodec = e.Formats.AudioCodecs[i]
			}
		}
	}
}

// watchJobs polls the given jobs until all are terminal and returns how
// many ended in error. On a terminal it redraws one line per job; otherwise
// it logs state changes.
func watchJobs(o *orchestrator.Orchestrator, ids []int) int {
	live := isTerminal(os.Stdout)
	var writer *uilive.Writer
	if live {
		writer = uilive.New()
		writer.Start()
		defer writer.Stop()
	}

	seen := make(map[int]models.JobState, len(ids))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		done, failed := 0, 0
		var lines []string
		for _, id := range ids {
			snap, err := o.GetProgress(id)
			if err != nil {
				log.WithError(err).Warnf("Lost track of job %d", id)
				done++
				failed++
				continue
			}
			lines = append(lines, progressLine(snap))

			if !live {
				if prev, ok := seen[id]; !ok || prev != snap.State {
					logSnapshot(snap)
				}
			}
			seen[id] = snap.State

			if snap.State.IsTerminal() {
				done++
				if snap.State == models.StateError {
					failed++
				}
			}
		}

		if live {
			fmt.Fprint(writer, strings.Join(lines, "\n")+"\n")
		}
		if done == len(ids) {
			return failed
		}
		<-ticker.C
	}
}

func progressLine(s models.JobSnapshot) string {
	name := s.SourceURL
	if s.ResultPath != "" {
		name = filepath.Base(s.ResultPath)
	}
	line := fmt.Sprintf("[%d] %-11s %6.2f%%  %s", s.JobID, s.State, s.Percent, name)
	if s.State == models.StateDownloading && s.TotalBytes > 0 {
		line += fmt.Sprintf("  (%s / %s)", helpers.FormatFilesize(s.DownloadedBytes), helpers.FormatFilesize(s.TotalBytes))
	}
	if s.Error != "" {
		line += "  " + s.Error
	}
	return line
}

func logSnapshot(s models.JobSnapshot) {
	entry := log.WithFields(log.Fields{"jobId": s.JobID, "state": s.State.String(), "percent": fmt.Sprintf("%.1f", s.Percent)})
	switch s.State {
	case models.StateError:
		entry.Error(s.Error)
	case models.StateFinished:
		entry.WithField("path", s.ResultPath).Info("Download finished")
	default:
		entry.Info(s.SourceURL)
	}
}
