// Package present formats records for display.
package present

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/brewmap/brewmap/internal/domain"
)

// RelativeTime renders t relative to now: "just now" under a minute, then
// "3 minutes ago", "2 days ago" and so on. Future times, which only arise
// from clock skew, also read "just now".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if now.Sub(t) < time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Color is a display colour name.
type Color string

const (
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorGray   Color = "gray"
)

// StatusColor maps a submission status to its badge colour.
func StatusColor(status domain.SubmissionStatus) Color {
	switch status {
	case domain.SubmissionPending:
		return ColorYellow
	case domain.SubmissionApproved:
		return ColorGreen
	case domain.SubmissionRejected:
		return ColorRed
	default:
		return ColorGray
	}
}

// ActivitySummary is the one-line description of a feed item, without the
// actor.
func ActivitySummary(kind domain.ActivityKind, cafeName string) string {
	if cafeName == "" {
		cafeName = "a cafe"
	}
	switch kind {
	case domain.ActivityBookmark:
		return "bookmarked " + cafeName
	case domain.ActivityReview:
		return "reviewed " + cafeName
	case domain.ActivityUpvote:
		return "upvoted " + cafeName
	case domain.ActivityDownvote:
		return "downvoted " + cafeName
	default:
		return "interacted with " + cafeName
	}
}

// Bytes renders a size such as 5242880 as "5.0 MiB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// Count renders n with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}
