package platform

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const MaxTextLength = 4096

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

func SanitizeFilename(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 200
	}

	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = repeatedUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, " ._")

	if name == "" {
		return "download"
	}

	if len(name) > maxLen {
		ext := filepath.Ext(name)
		if len(ext) >= maxLen {
			ext = ""
		}
		base := truncateRunes(strings.TrimSuffix(name, ext), maxLen-len(ext))
		name = base + ext
	}
	return name
}

// SanitizeText strips control characters other than newline and tab and
// caps the result at maxLen bytes.
func SanitizeText(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxTextLength
	}

	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	if len(text) > maxLen {
		text = truncateRunes(text, maxLen-3) + "..."
	}
	return text
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
