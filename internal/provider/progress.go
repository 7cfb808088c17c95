package provider

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	B  = 1
	KB = 1024 * B
	MB = 1024 * KB
	GB = 1024 * MB
	TB = 1024 * GB
)

var unitMultipliers = map[string]float64{
	"B":   B,
	"KB":  KB,
	"KiB": KB,
	"MB":  MB,
	"MiB": MB,
	"GB":  GB,
	"GiB": GB,
	"TB":  TB,
	"TiB": TB,
}

var (
	ytdlpProgressRegex = regexp.MustCompile(`\[download\]\s+([\d.]+)%\s+of\s+~?\s*([\d.]+\s*[KMGT]?i?B)`)
	sizeRegex          = regexp.MustCompile(`^([\d.]+)\s*([KMGT]?i?B)$`)
)

// parseSize turns yt-dlp sizes such as "12.34MiB" into bytes.
func parseSize(s string) (int64, bool) {
	m := sizeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	mult, ok := unitMultipliers[m[2]]
	if !ok {
		return 0, false
	}
	return int64(v * mult), true
}

// progressTracker converts yt-dlp percentage lines into cumulative bytes.
// yt-dlp restarts at 0% for every stream it fetches (video, then audio), so
// finished streams are carried in base.
type progressTracker struct {
	base      int64
	lastBytes int64
	lastTotal int64
	lastPct   float64
}

// Feed returns the cumulative bytes and total estimate for a line, and false
// when the line is not a progress line.
func (p *progressTracker) Feed(line string) (int64, int64, bool) {
	m := ytdlpProgressRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	total, ok := parseSize(m[2])
	if !ok {
		return 0, 0, false
	}

	if pct+1 < p.lastPct {
		p.base += p.lastTotal
	}
	p.lastPct = pct
	p.lastTotal = total

	done := int64(float64(total) * pct / 100)
	p.lastBytes = p.base + done
	return p.lastBytes, p.base + total, true
}
