package handler

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/ratelimit"
	"github.com/pavelc4/aether-fetch/internal/resource"
	"github.com/pavelc4/aether-fetch/internal/stats"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
	"github.com/pavelc4/aether-fetch/pkg/utils"
)

const (
	maxTitleLen = 200
	// Callback alerts are cut off by clients past this length.
	maxAlertLen = 200
)

const startText = "👋 <b>Welcome to Aether</b>\n\n" +
	"Send me a link from YouTube, TikTok or Instagram and I will download it for you.\n" +
	"Use /help to see everything I can do."

const helpText = `<b>Aether Downloader</b>

<b>Commands</b>
• /dl [URL] - Download video (360p)
• /mp [URL] - Download audio only
• /status - Your rate limit and running downloads
• /cancel - Cancel your running downloads
• /help - Show this message

<b>Tips</b>
• Just send a link to download it
• YouTube links show a quality menu with size estimates
• Files above the upload limit are refused before sending

<b>Supported platforms</b>
YouTube, TikTok, Instagram`

var failureIcons = map[supervisor.Kind]string{
	supervisor.KindInvalidInput:          "⚠️",
	supervisor.KindRateLimited:           "⏳",
	supervisor.KindResourceExhausted:     "🚦",
	supervisor.KindExtractionError:       "❌",
	supervisor.KindFileTooLarge:          "📦",
	supervisor.KindExceedsTransportLimit: "📦",
	supervisor.KindTimedOut:              "⌛",
	supervisor.KindCancelled:             "🛑",
}

// failureText renders the user-facing message for a failed task.
func failureText(f *supervisor.Failure) string {
	if f == nil {
		return "❌ Download failed."
	}
	icon, ok := failureIcons[f.Kind]
	if !ok {
		icon = "❌"
	}
	return icon + " " + html.EscapeString(f.Message)
}

func progressText(s supervisor.Snapshot) string {
	var b strings.Builder

	switch s.State {
	case supervisor.StatePending, supervisor.StateValidating:
		b.WriteString("🔎 <b>Checking link...</b>")
	case supervisor.StateQueued:
		b.WriteString("⏳ <b>Waiting for a free slot...</b>")
	case supervisor.StateFinalizing:
		b.WriteString("📦 <b>Finalizing...</b>")
	default:
		fmt.Fprintf(&b, "⬇️ <b>Downloading</b> · %s", s.Quality.Label())
		if s.SizeEstimate > 0 {
			fmt.Fprintf(&b, "\n<code>%s</code>", utils.FormatProgressBar(utils.Percent(s.BytesTransferred, s.SizeEstimate)))
			fmt.Fprintf(&b, "\n%s / %s", utils.FormatFileSize(s.BytesTransferred), utils.FormatFileSize(s.SizeEstimate))
		} else {
			fmt.Fprintf(&b, "\n%s", utils.FormatFileSize(s.BytesTransferred))
		}
		if elapsed := s.Elapsed(); elapsed > 0 {
			fmt.Fprintf(&b, "\n⚡ %s", utils.FormatSpeed(float64(s.BytesTransferred)/elapsed.Seconds()))
		}
	}

	if s.Platform != platform.Unknown {
		fmt.Fprintf(&b, "\n🌐 %s", s.Platform)
	}
	fmt.Fprintf(&b, "\n⏱ %s", utils.FormatDuration(s.Elapsed()))
	return b.String()
}

func uploadText(uploaded, total int64) string {
	return fmt.Sprintf("📤 <b>Uploading...</b>\n<code>%s</code>\n%s / %s",
		utils.FormatProgressBar(utils.Percent(uploaded, total)),
		utils.FormatFileSize(uploaded),
		utils.FormatFileSize(total),
	)
}

func captionText(a *supervisor.Artifact, elapsed time.Duration) string {
	var b strings.Builder
	if a.Title != "" {
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(platform.SanitizeText(a.Title, maxTitleLen)))
	}
	fmt.Fprintf(&b, "%s · %s · %s", a.Platform, a.Quality.Label(), utils.FormatFileSize(a.SizeBytes))
	if elapsed > 0 {
		fmt.Fprintf(&b, " · %s", utils.FormatDuration(elapsed))
	}
	return b.String()
}

// menuText summarizes the probe and flags qualities expected to exceed
// the upload limit. info may be nil when probing failed.
func menuText(info *provider.Info, transportLimit int64) string {
	var b strings.Builder
	if info == nil {
		b.WriteString("🎬 <b>YouTube video</b>\n<i>Details are unavailable, sizes are unknown.</i>\n")
	} else {
		fmt.Fprintf(&b, "🎬 <b>%s</b>\n", html.EscapeString(platform.SanitizeText(info.Title, maxTitleLen)))
		var meta []string
		if info.Uploader != "" {
			meta = append(meta, "👤 "+html.EscapeString(info.Uploader))
		}
		meta = append(meta, "⏱ "+utils.FormatClock(info.Duration))
		if info.ViewCount > 0 {
			meta = append(meta, "👁 "+utils.FormatCount(info.ViewCount))
		}
		b.WriteString(strings.Join(meta, " · "))
		b.WriteString("\n")
	}

	b.WriteString("\n<b>Choose a format:</b>")
	for _, q := range provider.Qualities {
		fmt.Fprintf(&b, "\n• %s", q.Label())
		if info == nil {
			continue
		}
		est, ok := info.Estimates[q]
		if !ok || est.Bytes <= 0 {
			continue
		}
		prefix := ""
		if est.Approximate {
			prefix = "~"
		}
		fmt.Fprintf(&b, " · %s%s", prefix, utils.FormatFileSize(est.Bytes))
		if transportLimit > 0 && est.Bytes > transportLimit {
			b.WriteString(" ⚠️")
		}
	}

	if tooBig(info, transportLimit) {
		fmt.Fprintf(&b, "\n\n⚠️ Marked formats are likely above the %s upload limit.", utils.FormatFileSize(transportLimit))
	}
	return b.String()
}

func tooBig(info *provider.Info, limit int64) bool {
	if info == nil || limit <= 0 {
		return false
	}
	for _, est := range info.Estimates {
		if est.Bytes > limit {
			return true
		}
	}
	return false
}

// infoText is the detailed probe shown in a callback alert.
func infoText(info *provider.Info) string {
	if info == nil {
		return "No details available for this video."
	}
	lines := []string{platform.SanitizeText(info.Title, 80)}
	if info.Uploader != "" {
		lines = append(lines, "Channel: "+info.Uploader)
	}
	lines = append(lines, "Duration: "+utils.FormatClock(info.Duration))
	if info.ViewCount > 0 || info.LikeCount > 0 {
		lines = append(lines, fmt.Sprintf("Views: %s  Likes: %s", utils.FormatCount(info.ViewCount), utils.FormatCount(info.LikeCount)))
	}
	if d := formatUploadDate(info.UploadDate); d != "" {
		lines = append(lines, "Uploaded: "+d)
	}
	return platform.SanitizeText(strings.Join(lines, "\n"), maxAlertLen)
}

// formatUploadDate turns yt-dlp's YYYYMMDD into a readable date.
func formatUploadDate(raw string) string {
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return ""
	}
	return t.Format("2 Jan 2006")
}

func statusText(st ratelimit.Status, maxRequests int, period time.Duration, active []supervisor.Snapshot, maxPerUser int) string {
	var b strings.Builder
	b.WriteString("📊 <b>Your status</b>\n\n")
	fmt.Fprintf(&b, "<b>Requests</b>: %d / %d per %s\n", st.Used, maxRequests, utils.FormatDuration(period))
	if st.Remaining == 0 && st.ResetIn > 0 {
		fmt.Fprintf(&b, "⏳ Next request in %s\n", utils.FormatDuration(st.ResetIn.Round(time.Second)))
	}

	fmt.Fprintf(&b, "\n<b>Downloads</b>: %d / %d running", len(active), maxPerUser)
	for _, s := range active {
		fmt.Fprintf(&b, "\n• %s · %s · %s", s.Platform, s.Quality.Label(), s.State)
		if s.BytesTransferred > 0 {
			fmt.Fprintf(&b, " · %s", utils.FormatFileSize(s.BytesTransferred))
		}
	}
	return b.String()
}

type statsView struct {
	System *stats.SystemInfo
	Slots  resource.Snapshot
	Bot    stats.Snapshot
	Today  stats.PeriodStats
	Week   stats.PeriodStats
	Month  stats.PeriodStats
	Active []supervisor.Snapshot
	Rate   int
}

func statsText(v statsView) string {
	var b strings.Builder
	sys := v.System

	b.WriteString("<b>System Status</b>\n\n")
	if sys != nil {
		fmt.Fprintf(&b, "<b>OS Info</b>\n"+
			"├ System : <code>%s</code>\n"+
			"├ Host : <code>%s</code>\n"+
			"└ Uptime : <code>%s</code>\n\n",
			sys.OS, sys.Hostname, utils.FormatDuration(sys.SystemUptime))
		fmt.Fprintf(&b, "<b>CPU</b>\n"+
			"├ Cores : <code>%d</code>\n"+
			"└ Usage : <code>%.2f%%</code>\n\n",
			sys.CPUCores, sys.CPUUsage)
		fmt.Fprintf(&b, "<b>Memory</b>\n"+
			"├ Used : <code>%s / %s (%.1f%%)</code>\n"+
			"└ Free : <code>%s</code>\n\n",
			utils.FormatFileSize(int64(sys.MemUsed)), utils.FormatFileSize(int64(sys.MemTotal)), sys.MemPercent,
			utils.FormatFileSize(int64(sys.MemAvailable)))
		fmt.Fprintf(&b, "<b>Disk</b>\n"+
			"├ Used : <code>%s / %s (%.1f%%)</code>\n"+
			"└ Free : <code>%s</code>\n\n",
			utils.FormatFileSize(int64(sys.DiskUsed)), utils.FormatFileSize(int64(sys.DiskTotal)), sys.DiskPercent,
			utils.FormatFileSize(int64(sys.DiskFree)))
		fmt.Fprintf(&b, "<b>Network</b>\n"+
			"├ Sent : <code>%s</code>\n"+
			"└ Recv : <code>%s</code>\n\n",
			utils.FormatFileSize(int64(sys.NetSent)), utils.FormatFileSize(int64(sys.NetRecv)))
		fmt.Fprintf(&b, "<b>Bot Process</b>\n"+
			"├ Uptime : <code>%s</code>\n"+
			"├ PID : <code>%d</code>\n"+
			"├ CPU : <code>%.2f%%</code>\n"+
			"├ Mem : <code>%s</code>\n"+
			"├ Routines : <code>%d</code>\n"+
			"└ Go Ver : <code>%s</code>\n\n",
			utils.FormatDuration(sys.ProcessUptime), sys.ProcessPID, sys.ProcessCPU,
			utils.FormatFileSize(int64(sys.ProcessMem)), sys.Goroutines, sys.GoVersion)
	}

	fmt.Fprintf(&b, "<b>Slots</b>\n"+
		"├ In use : <code>%d / %d</code>\n"+
		"├ Per user : <code>%d</code>\n"+
		"└ Rate windows : <code>%d</code>\n",
		v.Slots.GlobalInUse, v.Slots.MaxGlobal, v.Slots.MaxPerUser, v.Rate)
	for _, line := range perUserLines(v.Slots.PerUser) {
		b.WriteString(line)
	}

	bot := v.Bot
	fmt.Fprintf(&b, "\n<b>Downloads</b>\n"+
		"├ Total : <code>%d</code> (ok %d, failed %d, cancelled %d, timed out %d)\n"+
		"├ Success : <code>%.1f%%</code>\n"+
		"├ Video / Audio : <code>%d / %d</code>\n"+
		"├ Delivered : <code>%s</code>\n"+
		"├ Users : <code>%d</code>\n"+
		"└ Running : <code>%d</code>\n",
		bot.Total, bot.Completed, bot.Failed, bot.Cancelled, bot.TimedOut,
		bot.SuccessRate(),
		bot.VideoDownloads, bot.AudioDownloads,
		utils.FormatFileSize(bot.TotalBytes),
		bot.UniqueUsers,
		len(v.Active))

	fmt.Fprintf(&b, "\n<b>Periods</b>\n"+
		"├ Today : <code>%d · %s · %d users</code>\n"+
		"├ Week : <code>%d · %s · %d users</code>\n"+
		"└ Month : <code>%d · %s · %d users</code>\n",
		v.Today.Downloads, utils.FormatFileSize(v.Today.Bytes), v.Today.Users,
		v.Week.Downloads, utils.FormatFileSize(v.Week.Bytes), v.Week.Users,
		v.Month.Downloads, utils.FormatFileSize(v.Month.Bytes), v.Month.Users)

	if len(bot.Platforms) > 0 {
		b.WriteString("\n<b>Platforms</b>\n")
		for i, p := range bot.Platforms {
			branch := "├"
			if i == len(bot.Platforms)-1 {
				branch = "└"
			}
			fmt.Fprintf(&b, "%s %s : <code>%d</code>\n", branch, p.Platform, p.Count)
		}
	}

	if len(bot.Failures) > 0 {
		b.WriteString("\n<b>Failures</b>\n")
		for _, k := range supervisor.Kinds {
			if n := bot.Failures[k]; n > 0 {
				fmt.Fprintf(&b, "• %s : <code>%d</code>\n", k, n)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func perUserLines(perUser map[int64]int) []string {
	ids := make([]int64, 0, len(perUser))
	for id := range perUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("   • <code>%d</code> : %d\n", id, perUser[id]))
	}
	return lines
}
