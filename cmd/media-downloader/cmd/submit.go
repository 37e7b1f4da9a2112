package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-downloader/internal/helpers"
	"go-media-downloader/internal/models"
)

// submitCmd probes a URL and lists what can be downloaded from it
var submitCmd = &cobra.Command{
	Use:   "submit [URL]",
	Short: "Show the formats of a video or the items of a playlist",
	Long: `Validates the URL against the supported platforms and asks yt-dlp for its
metadata without downloading anything. Videos list their video and audio
streams; playlists list their items.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().Bool("playlist", false, "Treat the URL as a playlist")
	submitCmd.Flags().Bool("json", false, "Print the result as JSON")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	isPlaylist, _ := cmd.Flags().GetBool("playlist")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	typ := models.DownloadVideo
	if isPlaylist {
		typ = models.DownloadPlaylist
	}

	res, err := a.orch.Submit(cmd.Context(), args[0], typ)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	switch r := res.(type) {
	case *models.VideoFormats:
		printVideoFormats(r)
	case *models.PlaylistInfo:
		printPlaylist(r)
	default:
		log.Warnf("Unexpected submit result %T", res)
	}
	return nil
}

func printVideoFormats(v *models.VideoFormats) {
	fmt.Printf("Title:    %s\n", v.Title)
	fmt.Printf("Uploader: %s\n", v.Uploader)
	fmt.Printf("Duration: %s\n", v.Duration)
	fmt.Printf("Video ID: %s\n\n", v.VideoID)

	if len(v.VideoStreams) > 0 {
		rows := make([][]string, 0, len(v.VideoStreams))
		for _, s := range v.VideoStreams {
			rows = append(rows, []string{s.FormatID, s.Resolution, s.Codec, s.Extension, helpers.FormatFilesize(s.Filesize)})
		}
		printTable(os.Stdout,
			[]string{"Video ID", "Resolution", "Codec", "Ext", "Size"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
	}

	if len(v.AudioStreams) > 0 {
		rows := make([][]string, 0, len(v.AudioStreams))
		for _, s := range v.AudioStreams {
			rows = append(rows, []string{s.FormatID, strconv.Itoa(s.Bitrate) + "k", s.Codec, s.Extension, helpers.FormatFilesize(s.Filesize)})
		}
		printTable(os.Stdout,
			[]string{"Audio ID", "Bitrate", "Codec", "Ext", "Size"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight})
	}

	if v.BestFormat != "" {
		fmt.Printf("\nHighest resolution stream: %s (download with -f %s+bestaudio)\n", v.BestFormat, v.BestFormat)
	}
}

func printPlaylist(p *models.PlaylistInfo) {
	fmt.Printf("Playlist: %s (%d videos)\n", p.Title, p.VideoCount())
	if p.Uploader != "" {
		fmt.Printf("Uploader: %s\n", p.Uploader)
	}

	rows := make([][]string, 0, len(p.Entries))
	for i, e := range p.Entries {
		rows = append(rows, []string{strconv.Itoa(i + 1), e.Title, helpers.FormatDuration(float64(e.Duration)), e.URL})
	}
	printTable(os.Stdout,
		[]string{"#", "Title", "Duration", "URL"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft})
}
