package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-downloader/internal/helpers"
	"go-media-downloader/internal/models"
	"go-media-downloader/internal/store"
)

// historyCmd represents the base command for history operations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage the download history",
	Long:  `List, search, verify and maintain the entries recorded for finished downloads.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List history entries, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [ENTRY_ID]",
	Short: "Print the full record of one entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historySearchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Full-text search over history entries",
	Long: `Searches titles, uploaders, platforms and other fields of the history.
The query uses Bleve query-string syntax, e.g. '+platform:YouTube rick'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHistorySearch,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history entry",
	RunE:  runHistoryClear,
}

var historyVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that downloaded files still exist and match their recorded hash",
	RunE:  runHistoryVerify,
}

var historyReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the history store",
	RunE:  runHistoryReindex,
}

var historyImportCmd = &cobra.Command{
	Use:   "import [FILE]",
	Short: "Import entries from a JSON file (one object or an array)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryImport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyVerifyCmd)
	historyCmd.AddCommand(historyReindexCmd)
	historyCmd.AddCommand(historyImportCmd)

	historyListCmd.Flags().IntP("limit", "n", 0, "Show at most this many entries (0 for all)")
	historySearchCmd.Flags().IntP("limit", "n", 20, "Maximum number of results")
	historyClearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	historyVerifyCmd.Flags().Bool("check-hash", true, "Compare file hashes, not just presence")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.store.LoadAllEntries(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(entries) == 0 {
		log.Info("Download history is empty.")
		return nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.EntryID,
			e.Title,
			e.Duration,
			time.UnixMilli(e.CreatedAtMillis).Format("2006-01-02 15:04"),
			e.ResultPath,
		})
	}
	printTable(os.Stdout,
		[]string{"Entry ID", "Title", "Duration", "Added", "File"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	e, err := a.store.LoadEntry(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()
	if a.index == nil {
		return errors.New("search index is not available")
	}

	query := strings.Join(args, " ")
	items, err := a.index.Search(query, limit)
	if err != nil {
		return fmt.Errorf("searching history: %w", err)
	}
	if len(items) == 0 {
		log.Infof("No entries match %q", query)
		return nil
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.ID, it.Title, it.Platform, it.Uploader, it.ResultPath})
	}
	printTable(os.Stdout,
		[]string{"Entry ID", "Title", "Platform", "Uploader", "File"},
		rows, nil)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Print("Delete the entire download history? Downloaded files are kept. [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			log.Info("Aborted.")
			return nil
		}
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	return a.store.ClearAll()
}

func runHistoryVerify(cmd *cobra.Command, args []string) error {
	checkHash, _ := cmd.Flags().GetBool("check-hash")

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.store.LoadAllEntries(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	var rows [][]string
	var problems int
	for _, e := range entries {
		if e.ResultPath == "" {
			continue
		}
		status := "OK"
		if _, err := os.Stat(e.ResultPath); err != nil {
			status = "Missing"
		} else if checkHash && e.FileHash != "" && !helpers.CheckHash(e.ResultPath, e.FileHash) {
			status = "Hash mismatch"
		}
		if status != "OK" {
			problems++
		}
		rows = append(rows, []string{e.EntryID, e.Title, status})
	}

	if len(rows) == 0 {
		log.Info("No downloaded files recorded in history.")
		return nil
	}
	printTable(os.Stdout, []string{"Entry ID", "Title", "Status"}, rows, nil)
	log.Infof("Verified %d files, %d problems", len(rows), problems)
	if problems > 0 {
		return fmt.Errorf("%d files missing or changed", problems)
	}
	return nil
}

func runHistoryReindex(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()
	if a.index == nil {
		return errors.New("search index is not available")
	}

	entries, err := a.store.LoadAllEntries(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if err := a.index.Reset(); err != nil {
		return err
	}
	for _, e := range entries {
		if err := a.index.IndexEntry(e); err != nil {
			log.WithError(err).WithField("entryId", e.EntryID).Warn("Error indexing entry")
		}
	}
	count, _ := a.index.Count()
	log.Infof("Search index rebuilt with %d entries", count)
	return nil
}

func runHistoryImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	entries, err := decodeEntries(data)
	if err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ids, err := a.store.SaveEntries(entries)
	log.Infof("Imported %d of %d entries", len(ids), len(entries))
	if errors.Is(err, store.ErrStorageWriteFailed) {
		return fmt.Errorf("import stopped: %w", err)
	}
	return err
}

// decodeEntries accepts a single entry object or an array of them. Every
// record goes through models.DecodeEntry so malformed ones are reported
// with their position.
func decodeEntries(data []byte) ([]models.Entry, error) {
	data = bytes.TrimSpace(data)
	var raws []json.RawMessage
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("decode entries: %w", err)
		}
	} else {
		raws = []json.RawMessage{data}
	}

	entries := make([]models.Entry, 0, len(raws))
	for i, raw := range raws {
		e, err := models.DecodeEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
