package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-downloader/internal/engine"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the program and yt-dlp versions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("media-downloader %s\n", Version)

		y := engine.NewYtDlp(globalConfig.YtDlpPath)
		v, err := y.Version(cmd.Context())
		if err != nil {
			log.WithError(err).Warnf("yt-dlp not usable at %q", y.Binary)
			fmt.Println("yt-dlp: not available")
			return
		}
		fmt.Printf("yt-dlp %s\n", v)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
