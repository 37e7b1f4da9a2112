package cmd

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-downloader/internal/database"
	"go-media-downloader/internal/models"
)

// jobsCmd lists jobs recorded in the journal by earlier runs
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List finished and failed download jobs",
	Long: `Every job that reaches a final state is written to the job journal. This
lists those records, including jobs that failed and so never reached the
history store.`,
	RunE: runJobsList,
}

var jobsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every record from the job journal",
	RunE:  runJobsClear,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsClearCmd)

	jobsCmd.Flags().Bool("failed", false, "Only show failed jobs")
}

func openJournal() (*database.DB, error) {
	log.Debugf("Opening job journal at: %s", globalConfig.DatabasePath)
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening job journal at %s: %w", globalConfig.DatabasePath, err)
	}
	return db, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	onlyFailed, _ := cmd.Flags().GetBool("failed")

	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := db.LoadJobs()
	if err != nil {
		return err
	}

	var rows [][]string
	for _, j := range jobs {
		if onlyFailed && j.State != models.StateError {
			continue
		}
		detail := j.ResultPath
		if j.Error != "" {
			detail = j.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(j.JobID),
			j.State.String(),
			j.UpdatedAt.Format("2006-01-02 15:04:05"),
			j.SourceURL,
			j.EntryID,
			detail,
		})
	}
	if len(rows) == 0 {
		log.Info("No jobs recorded.")
		return nil
	}
	printTable(os.Stdout,
		[]string{"Job", "State", "Updated", "URL", "Entry ID", "Result"},
		rows,
		[]columnAlignment{alignRight})
	return nil
}

func runJobsClear(cmd *cobra.Command, args []string) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.ClearJobs()
	if err != nil {
		return err
	}
	log.Infof("Removed %d job records", removed)
	return nil
}
