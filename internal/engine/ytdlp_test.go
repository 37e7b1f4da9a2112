package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Event
		wantOK bool
	}{
		{
			name:   "Progress with exact total",
			line:   "mdl-progress downloading 1024 4096 NA /dl/My Video.f137.mp4",
			want:   Event{Kind: EventProgress, Downloaded: 1024, Total: 4096, Filename: "/dl/My Video.f137.mp4"},
			wantOK: true,
		},
		{
			name:   "Progress with estimate only",
			line:   "mdl-progress downloading 512 NA 2048.7 /dl/a.webm",
			want:   Event{Kind: EventProgress, Downloaded: 512, Total: 2048, Filename: "/dl/a.webm"},
			wantOK: true,
		},
		{
			name:   "Progress with unknown total",
			line:   "mdl-progress downloading 512 NA NA NA",
			want:   Event{Kind: EventProgress, Downloaded: 512},
			wantOK: true,
		},
		{
			name:   "Stream finished",
			line:   "mdl-progress finished 4096 4096 NA /dl/a.f140.m4a",
			want:   Event{Kind: EventStreamFinished, Downloaded: 4096, Total: 4096, Filename: "/dl/a.f140.m4a"},
			wantOK: true,
		},
		{
			name:   "Subtitle progress",
			line:   "mdl-progress downloading 100 400 NA /dl/a.en.vtt",
			want:   Event{Kind: EventSubtitle, Downloaded: 100, Total: 400, Filename: "/dl/a.en.vtt"},
			wantOK: true,
		},
		{
			name:   "Subtitle finished",
			line:   "mdl-progress finished 400 400 NA /dl/a.live_chat.JSON3",
			want:   Event{Kind: EventSubtitle, Downloaded: 400, Total: 400, Filename: "/dl/a.live_chat.JSON3"},
			wantOK: true,
		},
		{
			name:   "Progress error status ignored",
			line:   "mdl-progress error 0 NA NA x",
			wantOK: false,
		},
		{
			name:   "Info",
			line:   "mdl-info dQw4w9WgXcQ https://www.youtube.com/watch?v=dQw4w9WgXcQ 212.0 Never Gonna Give You Up",
			want:   Event{Kind: EventInfo, VideoID: "dQw4w9WgXcQ", WebpageURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Duration: 212, Title: "Never Gonna Give You Up"},
			wantOK: true,
		},
		{
			name:   "Info with missing fields",
			line:   "mdl-info abc NA NA NA",
			want:   Event{Kind: EventInfo, VideoID: "abc"},
			wantOK: true,
		},
		{
			name:   "Result",
			line:   "mdl-result /dl/My Video.mp4",
			want:   Event{Kind: EventPostProcessed, Filename: "/dl/My Video.mp4"},
			wantOK: true,
		},
		{
			name:   "Result NA",
			line:   "mdl-result NA",
			wantOK: false,
		},
		{
			name:   "Ordinary output",
			line:   "[youtube] Extracting URL: https://youtu.be/x",
			wantOK: false,
		},
		{
			name:   "Truncated progress",
			line:   "mdl-progress downloading 1",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDownloadArgs(t *testing.T) {
	y := NewYtDlp("")
	y.FFmpegLocation = "/opt/ffmpeg"

	t.Run("Defaults", func(t *testing.T) {
		args := y.downloadArgs(Request{URL: "https://youtu.be/x", OutputDir: "/dl"})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-f best")
		assert.Contains(t, joined, "-o "+filepath.Join("/dl", DefaultOutputTemplate))
		assert.Contains(t, joined, "--no-check-certificates")
		assert.Contains(t, joined, "--legacy-server-connect")
		assert.Contains(t, joined, "--ffmpeg-location /opt/ffmpeg")
		assert.NotContains(t, joined, "--write-subs")
		assert.NotContains(t, joined, "--embed-subs")
		assert.Equal(t, []string{"--", "https://youtu.be/x"}, args[len(args)-2:])
	})

	t.Run("Embed without subtitles is ignored", func(t *testing.T) {
		joined := strings.Join(y.downloadArgs(Request{URL: "u", EmbedSubtitles: true}), " ")
		assert.NotContains(t, joined, "--embed-subs")
	})

	t.Run("Captions imply subtitles", func(t *testing.T) {
		joined := strings.Join(y.downloadArgs(Request{URL: "u", Format: "137+140", Captions: true, EmbedSubtitles: true}), " ")
		assert.Contains(t, joined, "-f 137+140")
		assert.Contains(t, joined, "--write-subs")
		assert.Contains(t, joined, "--write-auto-subs")
		assert.Contains(t, joined, "--embed-subs")
	})

	t.Run("Request override wins", func(t *testing.T) {
		joined := strings.Join(y.downloadArgs(Request{URL: "u", FFmpegLocation: "/usr/bin/ffmpeg"}), " ")
		assert.Contains(t, joined, "--ffmpeg-location /usr/bin/ffmpeg")
		assert.NotContains(t, joined, "/opt/ffmpeg")
	})
}

func TestProbeArgs(t *testing.T) {
	y := NewYtDlp("yt-dlp")
	assert.Contains(t, y.probeArgs("u", true), "--flat-playlist")
	assert.Contains(t, y.probeArgs("u", false), "--no-playlist")
	assert.Contains(t, y.probeArgs("u", false), "-J")
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "[youtube] x: Video unavailable", errorMessage("WARNING: a\nERROR: [youtube] x: Video unavailable\n"))
	assert.Equal(t, "something odd", errorMessage("  something odd \n"))
}

func TestSplitByNewlineOrCR(t *testing.T) {
	var lines []string
	data := []byte("a\rb\n\nc")
	for len(data) > 0 {
		adv, tok, err := splitByNewlineOrCR(data, true)
		require.NoError(t, err)
		if tok != nil {
			lines = append(lines, string(tok))
		}
		data = data[adv:]
	}
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestAppendLimited(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		appendLimited(&b, "0123456789")
	}
	assert.Equal(t, stderrKeep, b.Len())
}

const fakeEngine = `#!/bin/sh
for a in "$@"; do
	if [ "$a" = "-J" ]; then
		echo '{"id":"abc","title":"Probe","formats":[{"format_id":"18","vcodec":"avc1","acodec":"mp4a"}]}'
		exit 0
	fi
done
case "$*" in
	*fail*)
		echo "ERROR: [generic] fail: Unsupported URL" >&2
		exit 1
		;;
esac
echo "[youtube] Extracting URL"
echo "mdl-info abc https://www.youtube.com/watch?v=abc 61.0 Some Title"
printf "mdl-progress downloading 10 100 NA /tmp/Some Title.mp4\r"
printf "mdl-progress downloading 100 100 NA /tmp/Some Title.mp4\n"
echo "mdl-progress finished 100 100 NA /tmp/Some Title.mp4"
echo "mdl-result /tmp/Some Title.mp4"
`

func fakeBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte(fakeEngine), 0o755))
	return path
}

func TestYtDlpAgainstStub(t *testing.T) {
	y := NewYtDlp(fakeBinary(t))
	require.True(t, y.Available())
	ctx := context.Background()

	t.Run("Probe", func(t *testing.T) {
		raw, err := y.ProbeFormats(ctx, "https://youtu.be/abc", false)
		require.NoError(t, err)
		assert.Equal(t, "abc", raw.ID)
		require.Len(t, raw.Formats, 1)
		assert.Equal(t, "18", raw.Formats[0].FormatID)
	})

	t.Run("Download", func(t *testing.T) {
		events := make(chan Event, 16)
		require.NoError(t, y.Download(ctx, Request{URL: "https://youtu.be/abc"}, events))
		close(events)

		var kinds []EventKind
		var last Event
		for ev := range events {
			kinds = append(kinds, ev.Kind)
			last = ev
		}
		assert.Equal(t, []EventKind{EventInfo, EventProgress, EventProgress, EventStreamFinished, EventPostProcessed}, kinds)
		assert.Equal(t, "/tmp/Some Title.mp4", last.Filename)
	})

	t.Run("Failure", func(t *testing.T) {
		events := make(chan Event, 16)
		err := y.Download(ctx, Request{URL: "https://example.com/fail"}, events)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unsupported URL")
	})
}

func TestUnavailableBinary(t *testing.T) {
	y := NewYtDlp(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.False(t, y.Available())

	_, err := y.ProbeFormats(context.Background(), "u", false)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, y.Download(context.Background(), Request{URL: "u"}, nil), ErrUnavailable)
	_, err = y.Version(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
