package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Setup ---

var (
	binaryName  = "media-downloader"
	binaryPath  string
	projectRoot string
)

// TestMain builds the binary once for all tests in the package
func TestMain(m *testing.M) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		fmt.Println("Could not get caller information")
		os.Exit(1)
	}
	projectRoot = filepath.Join(filepath.Dir(filename), "..", "..")

	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	buildDir, err := os.MkdirTemp("", "media-downloader-it")
	if err != nil {
		fmt.Printf("Failed to create build directory: %v\n", err)
		os.Exit(1)
	}
	binaryPath = filepath.Join(buildDir, binaryName)

	fmt.Println("Building binary for integration tests...")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	buildCmd.Dir = filepath.Join(projectRoot, "cmd", "media-downloader")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		fmt.Printf("Failed to build binary: %v\nOutput:\n%s\n", err, string(buildOutput))
		os.Exit(1)
	}

	exitCode := m.Run()
	os.RemoveAll(buildDir)
	os.Exit(exitCode)
}

// --- Helper Functions ---

type env struct {
	dir        string
	configPath string
	dataDir    string
	outDir     string
}

// runCommand executes the binary against the env's config
func (e env) runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, append([]string{"--config", e.configPath}, args...)...)
	cmd.Dir = e.dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		t.Logf("Command failed with error: %v\nStderr:\n%s", err, stderr.String())
	}
	return stdout.String(), stderr.String(), err
}

const fakeYtDlp = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
	if [ "$a" = "-J" ]; then
		echo '{"id":"abc123def45","title":"Test Clip","duration":42,"webpage_url":"https://www.youtube.com/watch?v=abc123def45","formats":[{"format_id":"18","vcodec":"avc1","acodec":"mp4a","ext":"mp4","height":360}]}'
		exit 0
	fi
	if [ "$prev" = "-o" ]; then
		out="$a"
	fi
	prev="$a"
done
dir=$(dirname "$out")
mkdir -p "$dir"
file="$dir/Test Clip.mp4"
printf 'video-bytes' > "$file"
echo "mdl-info abc123def45 https://www.youtube.com/watch?v=abc123def45 42.0 Test Clip"
echo "mdl-progress downloading 5 11 NA $file"
echo "mdl-progress finished 11 11 NA $file"
echo "mdl-result $file"
`

// newEnv writes a config pointing every path into a fresh temp directory
// and, on POSIX systems, a yt-dlp stand-in script.
func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		dataDir:    filepath.Join(dir, "data"),
		outDir:     filepath.Join(dir, "downloads"),
	}

	ytdlp := filepath.Join(dir, "missing-yt-dlp")
	if runtime.GOOS != "windows" {
		ytdlp = filepath.Join(dir, "yt-dlp")
		require.NoError(t, os.WriteFile(ytdlp, []byte(fakeYtDlp), 0o755))
	}

	cfg := fmt.Sprintf("DataDir = %q\nDownloadDir = %q\nYtDlpPath = %q\nProgressThrottleMs = -1\n", e.dataDir, e.outDir, ytdlp)
	require.NoError(t, os.WriteFile(e.configPath, []byte(cfg), 0o644))
	return e
}

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("yt-dlp stand-in requires a POSIX shell")
	}
}

// --- Test Cases ---

func TestImportListShow(t *testing.T) {
	e := newEnv(t)

	records := `[
		{"entryId": "entry_1_aaaaaaaa", "videoId": "v1", "title": "Older", "formats": {}, "sequenceIndex": 0, "createdAtMillis": 1000},
		{"entryId": "entry_2_bbbbbbbb", "videoId": "v2", "title": "Newer", "formats": {}, "sequenceIndex": 1, "createdAtMillis": 2000}
	]`
	importPath := filepath.Join(e.dir, "import.json")
	require.NoError(t, os.WriteFile(importPath, []byte(records), 0o644))

	_, _, err := e.runCommand(t, "history", "import", importPath)
	require.NoError(t, err)

	stdout, _, err := e.runCommand(t, "history", "list")
	require.NoError(t, err)
	newer := strings.Index(stdout, "Newer")
	older := strings.Index(stdout, "Older")
	require.True(t, newer >= 0 && older >= 0, "both entries listed:\n%s", stdout)
	assert.Less(t, newer, older, "newest entry first")

	stdout, _, err = e.runCommand(t, "history", "show", "entry_1_aaaaaaaa")
	require.NoError(t, err)
	var shown map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &shown))
	assert.Equal(t, "v1", shown["videoId"])

	assert.FileExists(t, filepath.Join(e.dataDir, "index.json"))
	assert.FileExists(t, filepath.Join(e.dataDir, "entries", "entry_2_bbbbbbbb", "metadata.json"))
}

func TestImportRejectsMalformedEntry(t *testing.T) {
	e := newEnv(t)
	importPath := filepath.Join(e.dir, "bad.json")
	require.NoError(t, os.WriteFile(importPath, []byte(`{"entryId": "x", "bogus": true}`), 0o644))

	_, _, err := e.runCommand(t, "history", "import", importPath)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(e.dataDir, "entries", "x", "metadata.json"))
}

func TestSubmitInvalidURL(t *testing.T) {
	requirePOSIX(t)
	e := newEnv(t)

	_, stderr, err := e.runCommand(t, "submit", "not a url")
	require.Error(t, err)
	assert.Contains(t, stderr, "invalid or unsupported URL")
}

func TestSubmitPlaylistAsVideo(t *testing.T) {
	requirePOSIX(t)
	e := newEnv(t)

	_, stderr, err := e.runCommand(t, "submit", "https://youtube.com/playlist?list=X")
	require.Error(t, err)
	assert.Contains(t, stderr, "playlist URL submitted as a single video")
	assert.Contains(t, stderr, "https://youtube.com/playlist?list=X")
}

func TestSubmitVideoJSON(t *testing.T) {
	requirePOSIX(t)
	e := newEnv(t)

	stdout, _, err := e.runCommand(t, "submit", "--json", "https://www.youtube.com/watch?v=abc123def45")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "Test Clip", res["title"])
	assert.Equal(t, "00:42", res["duration"])
	assert.Regexp(t, `^entry_\d+_`, res["entryId"])
}

func TestDownloadRecordsHistoryOnce(t *testing.T) {
	requirePOSIX(t)
	e := newEnv(t)
	url := "https://www.youtube.com/watch?v=abc123def45"

	for i := 0; i < 2; i++ {
		_, _, err := e.runCommand(t, "download", url)
		require.NoError(t, err, "download %d", i+1)
	}
	assert.FileExists(t, filepath.Join(e.outDir, "Test Clip.mp4"))

	data, err := os.ReadFile(filepath.Join(e.dataDir, "index.json"))
	require.NoError(t, err)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 1, "same video downloaded twice keeps one entry")
	assert.Equal(t, "abc123def45", rows[0]["videoId"])

	stdout, _, err := e.runCommand(t, "jobs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "finished")

	_, _, err = e.runCommand(t, "history", "verify")
	assert.NoError(t, err)

	stdout, _, err = e.runCommand(t, "history", "search", "Clip")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Test Clip")
}

func TestHistoryClear(t *testing.T) {
	e := newEnv(t)
	importPath := filepath.Join(e.dir, "one.json")
	require.NoError(t, os.WriteFile(importPath, []byte(`{"entryId": "entry_1_aaaaaaaa", "title": "Only", "formats": {}}`), 0o644))

	_, _, err := e.runCommand(t, "history", "import", importPath)
	require.NoError(t, err)
	_, _, err = e.runCommand(t, "history", "clear", "--yes")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(e.dataDir, "index.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
	assert.NoDirExists(t, filepath.Join(e.dataDir, "entries", "entry_1_aaaaaaaa"))
}
