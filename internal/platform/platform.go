// Package platform classifies media URLs into the set of supported source
// platforms and provides the URL and text hygiene helpers used around it.
package platform

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type Platform int

const (
	Unknown Platform = iota
	YouTube
	TikTok
	Instagram
)

func (p Platform) String() string {
	switch p {
	case YouTube:
		return "YouTube"
	case TikTok:
		return "TikTok"
	case Instagram:
		return "Instagram"
	default:
		return "Unknown"
	}
}

const MaxURLLength = 2048

var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

type matcher struct {
	platform Platform
	patterns []*regexp.Regexp
}

// Order matters: the first matching platform wins.
var matchers = []matcher{
	{YouTube, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|m\.)?youtube\.com/watch\?(?:.*&)?v=[\w-]+`),
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?youtu\.be/[\w-]+`),
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|m\.)?youtube\.com/shorts/[\w-]+`),
	}},
	{TikTok, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|vm\.|vt\.|m\.|lite\.)?tiktok\.com/[\w@./-]+`),
	}},
	{Instagram, []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?instagram\.com/(?:p|reel|reels|stories)/[\w.-]+`),
	}},
}

func Classify(rawURL string) Platform {
	rawURL = strings.TrimSpace(rawURL)
	for _, m := range matchers {
		for _, re := range m.patterns {
			if re.MatchString(rawURL) {
				return m.platform
			}
		}
	}
	return Unknown
}

// Validate checks URL syntax and classifies it. Any returned error wraps
// ErrInvalidURL or ErrUnsupportedPlatform.
func Validate(rawURL string) (Platform, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Unknown, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if len(rawURL) > MaxURLLength {
		return Unknown, fmt.Errorf("%w: longer than %d characters", ErrInvalidURL, MaxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Unknown, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return Unknown, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	p := Classify(rawURL)
	if p == Unknown {
		return Unknown, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, u.Host)
	}
	return p, nil
}

var keptQueryParams = []string{"v", "list", "t"}

// Sanitize drops the fragment and every query parameter except the ones
// that select the media.
func Sanitize(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	kept := url.Values{}
	for _, k := range keptQueryParams {
		if v := q.Get(k); v != "" {
			kept.Set(k, v)
		}
	}
	u.RawQuery = kept.Encode()
	u.Fragment = ""
	return u.String()
}

var urlInText = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

func ExtractURL(text string) string {
	return urlInText.FindString(text)
}

var videoIDPatterns = map[Platform][]*regexp.Regexp{
	YouTube: {
		regexp.MustCompile(`[?&]v=([\w-]+)`),
		regexp.MustCompile(`youtu\.be/([\w-]+)`),
		regexp.MustCompile(`/shorts/([\w-]+)`),
	},
	TikTok: {
		regexp.MustCompile(`/video/(\d+)`),
	},
	Instagram: {
		regexp.MustCompile(`/(?:p|reel|reels|stories)/([\w.-]+)`),
	},
}

// VideoID returns the platform id embedded in the URL, or "" if none.
func VideoID(rawURL string, p Platform) string {
	for _, re := range videoIDPatterns[p] {
		if m := re.FindStringSubmatch(rawURL); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}
