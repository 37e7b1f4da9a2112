// Package platform classifies media URLs against a static table of supported
// sites. Every function is pure: no I/O, case-insensitive, deterministic.
package platform

import (
	neturl "net/url"
	"regexp"
	"strings"
)

// Unknown is returned by Name when no platform domain matches.
const Unknown = "Unknown"

type site struct {
	name      string
	domains   []*regexp.Regexp
	videos    []*regexp.Regexp
	playlists []*regexp.Regexp
}

// hosts matches a URL host equal to one of domains or a subdomain of it.
func hosts(domains ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(domains))
	for _, d := range domains {
		out = append(out, regexp.MustCompile(`(?i)(?:^|\.)`+d+`$`))
	}
	return out
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

var sites = []site{
	{
		name:      "YouTube",
		domains:   hosts(`youtube\.com`, `youtu\.be`, `m\.youtube\.com`, `yotu\.be`),
		videos:    compile(`/watch\?v=`, `/embed/`, `/shorts/`, `youtu\.be/`),
		playlists: compile(`[?&]list=`, `/playlist\?`),
	},
	{
		name:      "Vimeo",
		domains:   hosts(`vimeo\.com`, `player\.vimeo\.com`),
		videos:    compile(`/\d+`, `/video/`),
		playlists: compile(`/album/`, `/channels/`, `/groups/`, `/showcase/`),
	},
	{
		name:      "Dailymotion",
		domains:   hosts(`dailymotion\.com`, `dai\.ly`),
		videos:    compile(`/video/`, `dai\.ly/`),
		playlists: compile(`/playlist/`, `/user/.+/\d+`),
	},
	{
		name:      "Twitch",
		domains:   hosts(`twitch\.tv`, `m\.twitch\.tv`),
		videos:    compile(`/videos/`, `/clips/`),
		playlists: compile(`/collections/`, `/(videos|clips)\?filter=`),
	},
	{
		name:      "Facebook",
		domains:   hosts(`facebook\.com`, `fb\.watch`, `fb\.com`),
		videos:    compile(`/videos?/`, `/watch/`, `fb\.watch/`),
		playlists: compile(`/watch/[^/]+/\d+`),
	},
	{
		name:      "Instagram",
		domains:   hosts(`instagram\.com`, `instagr\.am`),
		videos:    compile(`/p/`, `/reel/`, `/tv/`),
		playlists: compile(`/explore/tags/`),
	},
	{
		// no playlists on this platform
		name:    "Twitter",
		domains: hosts(`twitter\.com`, `x\.com`, `t\.co`),
		videos:  compile(`/status/`, `/i/broadcasts/`),
	},
	{
		name:      "TikTok",
		domains:   hosts(`tiktok\.com`, `vm\.tiktok\.com`),
		videos:    compile(`/@[^/]+/video/`, `/v/`),
		playlists: compile(`/@[^/]+$`),
	},
	{
		name:      "SoundCloud",
		domains:   hosts(`soundcloud\.com`, `snd\.sc`),
		videos:    compile(`/[^/]+/[^/]+$`),
		playlists: compile(`/sets/`, `/[^/]+/tracks`, `/[^/]+/albums`),
	},
	{
		name:      "Reddit",
		domains:   hosts(`reddit\.com`, `redd\.it`, `v\.redd\.it`),
		videos:    compile(`/r/[^/]+/comments/`, `v\.redd\.it/`),
		playlists: compile(`/r/[^/]+/top`, `/r/[^/]+/hot`, `/user/[^/]+/submitted`),
	},
	{
		name:      "Bilibili",
		domains:   hosts(`bilibili\.com`, `b23\.tv`),
		videos:    compile(`/video/av`, `/video/BV`),
		playlists: compile(`/medialist/`, `/favlist/`, `/bangumi/play/`),
	},
}

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

func normalize(url string) string {
	url = strings.TrimSpace(url)
	if url != "" && !schemeRe.MatchString(url) {
		url = "https://" + url
	}
	return url
}

// hostOf returns the lower-cased host of url, or "" when it does not parse.
func hostOf(url string) string {
	u, err := neturl.Parse(normalize(url))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func lookup(url string) *site {
	host := hostOf(url)
	if host == "" {
		return nil
	}
	for i := range sites {
		if anyMatch(sites[i].domains, host) {
			return &sites[i]
		}
	}
	return nil
}

// IsValidVideoURL reports whether url belongs to a supported platform and
// looks like either a video or a playlist there. A missing scheme is
// treated as https.
func IsValidVideoURL(url string) bool {
	s := lookup(url)
	if s == nil {
		return false
	}
	url = normalize(url)
	return anyMatch(s.videos, url) || anyMatch(s.playlists, url)
}

// IsValidPlaylistURL reports whether url matches a supported platform's playlist patterns.
func IsValidPlaylistURL(url string) bool {
	s := lookup(url)
	return s != nil && anyMatch(s.playlists, normalize(url))
}

// Name returns the platform name for url, or Unknown.
func Name(url string) string {
	if s := lookup(url); s != nil {
		return s.name
	}
	return Unknown
}

// SupportsPlaylists reports whether url's platform has playlist patterns at all.
func SupportsPlaylists(url string) bool {
	s := lookup(url)
	return s != nil && len(s.playlists) > 0
}

var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11}).*`),
	regexp.MustCompile(`(?:embed/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:shorts/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`^([0-9A-Za-z_-]{11})$`),
}

// ExtractVideoID pulls an 11-character YouTube video ID out of url.
// It returns "" when none is found.
func ExtractVideoID(url string) string {
	if url == "" {
		return ""
	}
	for _, re := range youtubeIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// Classifier exposes the package functions as a value so callers can
// depend on an interface and substitute fakes.
type Classifier struct{}

func (Classifier) IsValidVideoURL(url string) bool    { return IsValidVideoURL(url) }
func (Classifier) IsValidPlaylistURL(url string) bool { return IsValidPlaylistURL(url) }
func (Classifier) PlatformName(url string) string     { return Name(url) }
func (Classifier) SupportsPlaylists(url string) bool  { return SupportsPlaylists(url) }
