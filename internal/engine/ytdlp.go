package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go-media-downloader/internal/formats"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBinary is looked up on PATH when no binary is configured.
	DefaultBinary = "yt-dlp"
	// DefaultUserAgent is sent to sites that reject non-browser clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// DefaultOutputTemplate names downloaded files after their title.
	DefaultOutputTemplate = "%(title)s.%(ext)s"

	progressPrefix = "mdl-progress"
	infoPrefix     = "mdl-info"
	resultPrefix   = "mdl-result"

	notAvailable = "NA"
	stderrKeep   = 8192
)

// YtDlp drives the yt-dlp command-line program.
type YtDlp struct {
	Binary         string
	FFmpegLocation string
	UserAgent      string
}

// NewYtDlp returns an adapter for binary, falling back to DefaultBinary.
func NewYtDlp(binary string) *YtDlp {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &YtDlp{Binary: binary, UserAgent: DefaultUserAgent}
}

func (y *YtDlp) binary() string {
	if y.Binary == "" {
		return DefaultBinary
	}
	return y.Binary
}

// Available reports whether the binary can be found.
func (y *YtDlp) Available() bool {
	_, err := exec.LookPath(y.binary())
	return err == nil
}

// Version returns the engine's reported version string.
func (y *YtDlp) Version(ctx context.Context) (string, error) {
	if !y.Available() {
		return "", ErrUnavailable
	}
	out, err := exec.CommandContext(ctx, y.binary(), "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", y.binary(), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (y *YtDlp) commonArgs() []string {
	ua := y.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return []string{
		"--no-warnings",
		"--no-check-certificates",
		"--legacy-server-connect",
		"--user-agent", ua,
	}
}

func (y *YtDlp) probeArgs(url string, flatten bool) []string {
	args := append(y.commonArgs(), "-J")
	if flatten {
		args = append(args, "--flat-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	return append(args, "--", url)
}

// ProbeFormats runs the engine in metadata-only mode.
func (y *YtDlp) ProbeFormats(ctx context.Context, url string, flatten bool) (*formats.RawMetadata, error) {
	if !y.Available() {
		return nil, ErrUnavailable
	}

	cmd := exec.CommandContext(ctx, y.binary(), y.probeArgs(url, flatten)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithFields(log.Fields{"url": url, "flatten": flatten}).Debug("Probing formats")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, errorMessage(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output")
	}
	return formats.Decode(stdout.Bytes())
}

func (y *YtDlp) downloadArgs(req Request) []string {
	format := req.Format
	if format == "" {
		format = "best"
	}
	template := req.OutputTemplate
	if template == "" {
		template = DefaultOutputTemplate
	}
	output := template
	if req.OutputDir != "" {
		output = filepath.Join(req.OutputDir, template)
	}

	args := append(y.commonArgs(),
		"--newline",
		"--no-playlist",
		"--progress",
		"--no-simulate",
		"-f", format,
		"-o", output,
		"--progress-template", "download:" + progressPrefix +
			" %(progress.status)s %(progress.downloaded_bytes)s %(progress.total_bytes)s %(progress.total_bytes_estimate)s %(progress.filename)s",
		"--print", "before_dl:" + infoPrefix + " %(id)s %(webpage_url)s %(duration)s %(title)s",
		"--print", "after_move:" + resultPrefix + " %(filepath)s",
	)

	if req.Subtitles || req.Captions {
		args = append(args, "--write-subs")
		if req.Captions {
			args = append(args, "--write-auto-subs")
		}
		if req.EmbedSubtitles {
			args = append(args, "--embed-subs")
		}
	}

	ffmpeg := req.FFmpegLocation
	if ffmpeg == "" {
		ffmpeg = y.FFmpegLocation
	}
	if ffmpeg != "" {
		args = append(args, "--ffmpeg-location", ffmpeg)
	}
	return append(args, "--", req.URL)
}

// Download runs one transfer and publishes parsed events. It blocks until
// the process exits.
func (y *YtDlp) Download(ctx context.Context, req Request, events chan<- Event) error {
	if !y.Available() {
		return ErrUnavailable
	}
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("video URL is required")
	}
	return y.run(ctx, y.downloadArgs(req), events)
}

func (y *YtDlp) run(ctx context.Context, args []string, events chan<- Event) error {
	cmd := exec.CommandContext(ctx, y.binary(), args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(r io.Reader, keep bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			if ev, ok := parseLine(line); ok {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
				continue
			}
			if keep {
				mu.Lock()
				appendLimited(&errBuf, line)
				mu.Unlock()
			}
			log.WithField("engine", "yt-dlp").Trace(line)
		}
	}

	wg.Add(2)
	go read(stdoutPipe, false)
	go read(stderrPipe, true)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Errorf("yt-dlp failed: %w: %s", err, errorMessage(errBuf.String()))
	}
	return nil
}

// parseLine recognises the marker lines requested through --progress-template
// and --print. Everything else is ordinary engine chatter.
func parseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, progressPrefix+" "):
		f := strings.SplitN(strings.TrimPrefix(line, progressPrefix+" "), " ", 5)
		if len(f) < 4 {
			return Event{}, false
		}
		ev := Event{Downloaded: parseBytes(f[1])}
		if total := parseBytes(f[2]); total > 0 {
			ev.Total = total
		} else {
			ev.Total = parseBytes(f[3])
		}
		if len(f) == 5 {
			ev.Filename = naToEmpty(f[4])
		}
		switch f[0] {
		case "downloading":
			ev.Kind = EventProgress
		case "finished":
			ev.Kind = EventStreamFinished
		default:
			return Event{}, false
		}
		if isSubtitleFile(ev.Filename) {
			ev.Kind = EventSubtitle
		}
		return ev, true

	case strings.HasPrefix(line, infoPrefix+" "):
		f := strings.SplitN(strings.TrimPrefix(line, infoPrefix+" "), " ", 4)
		if len(f) < 3 {
			return Event{}, false
		}
		ev := Event{
			Kind:       EventInfo,
			VideoID:    naToEmpty(f[0]),
			WebpageURL: naToEmpty(f[1]),
		}
		if d, err := strconv.ParseFloat(f[2], 64); err == nil {
			ev.Duration = d
		}
		if len(f) == 4 {
			ev.Title = naToEmpty(f[3])
		}
		return ev, true

	case strings.HasPrefix(line, resultPrefix+" "):
		path := strings.TrimSpace(strings.TrimPrefix(line, resultPrefix+" "))
		if path == "" || path == notAvailable {
			return Event{}, false
		}
		return Event{Kind: EventPostProcessed, Filename: path}, true
	}
	return Event{}, false
}

// subtitleExts are the extensions yt-dlp writes subtitles and captions with.
var subtitleExts = map[string]bool{
	".vtt": true, ".srt": true, ".ass": true, ".ssa": true, ".ttml": true, ".dfxp": true,
	".srv1": true, ".srv2": true, ".srv3": true, ".json3": true, ".lrc": true,
}

func isSubtitleFile(name string) bool {
	return subtitleExts[strings.ToLower(filepath.Ext(name))]
}

func parseBytes(s string) int64 {
	if s == "" || s == notAvailable {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v)
}

func naToEmpty(s string) string {
	if s == notAvailable {
		return ""
	}
	return s
}

// errorMessage prefers the engine's last "ERROR:" line over the full tail.
func errorMessage(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if msg, ok := strings.CutPrefix(strings.TrimSpace(lines[i]), "ERROR:"); ok {
			return strings.TrimSpace(msg)
		}
	}
	return strings.TrimSpace(stderr)
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(b *strings.Builder, line string) {
	if b.Len() >= stderrKeep {
		return
	}
	toWrite := line + "\n"
	if remain := stderrKeep - b.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
