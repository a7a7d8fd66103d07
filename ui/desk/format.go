package desk

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"supportdesk/ui/api"
)

const (
	PreviewLimit       = 50
	previewEllipsis    = "..."
	PreviewPlaceholder = "👋 Pressed /start"
)

// TimestampLayout is how the backend stores timestamps (SQLite, UTC).
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	TimestampLayout,
	"2006-01-02T15:04:05",
}

// DisplayName falls back to "User {id}" when the backend has no usable
// full name for the user.
func DisplayName(userID int64, info api.UserInfo) string {
	name := strings.TrimSpace(info.FullName)
	if name == "" || name == api.NameUnknown {
		return FallbackName(userID)
	}
	return name
}

func FallbackName(userID int64) string {
	return "User " + strconv.FormatInt(userID, 10)
}

// Preview returns the last message's text cut to PreviewLimit characters.
func Preview(messages []api.Message) string {
	if len(messages) == 0 {
		return PreviewPlaceholder
	}
	return Truncate(messages[len(messages)-1].Text, PreviewLimit)
}

func Truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + previewEllipsis
}

// ParseTimestamp accepts the SQLite CURRENT_TIMESTAMP layout (UTC) as well as
// RFC3339.
func ParseTimestamp(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders ts relative to now in now's location.
func FormatTime(ts string, now time.Time) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return ""
	}
	t = t.In(now.Location())
	clock := t.Format("15:04")
	if sameDay(t, now) {
		return clock
	}
	if sameDay(t, now.AddDate(0, 0, -1)) {
		return "Yesterday " + clock
	}
	return t.Format("02.01.2006") + " " + clock
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Sanitize strips escape sequences and control characters from backend text
// before it reaches the terminal. Newlines and tabs survive.
func Sanitize(text string) string {
	text = ansi.Strip(text)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		return r
	}, text)
}
