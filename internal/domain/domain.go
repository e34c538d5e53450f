// Package domain holds the records brewmap reads from and writes to the
// hosted tables. Field tags follow the column names of each table.
package domain

import "time"

// Profile is a row of profiles.
type Profile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	IsMerchant bool      `json:"is_merchant"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Location is the embedded location document of cafes and submissions.
type Location struct {
	Address string  `json:"address"`
	City    string  `json:"city"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// Cafe is a row of cafes.
type Cafe struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	Location             Location  `json:"location"`
	Wifi                 bool      `json:"wifi"`
	PowerOutletAvailable bool      `json:"powerOutletAvailable"`
	Amenities            []string  `json:"amenities,omitempty"`
	ImageURLs            []string  `json:"imageUrls,omitempty"`
	Upvotes              int       `json:"upvotes"`
	Downvotes            int       `json:"downvotes"`
	SubmittedBy          string    `json:"submitted_by,omitempty"`
	CreatedAt            time.Time `json:"created_at,omitempty"`
}

// Summary returns the compact form embedded in feed items and bookmarks.
func (c *Cafe) Summary() *CafeSummary {
	s := &CafeSummary{ID: c.ID, Name: c.Name, City: c.Location.City}
	if len(c.ImageURLs) > 0 {
		s.ImageURL = c.ImageURLs[0]
	}
	return s
}

// CafeSummary is the part of a cafe shown next to activity.
type CafeSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Review is a row of reviews. Rating is a thumbs up (true) or down (false).
type Review struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	CafeID    string       `json:"cafe_id"`
	Rating    bool         `json:"rating"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Author    *Profile     `json:"author,omitempty"`
	Cafe      *CafeSummary `json:"cafe,omitempty"`
}

// ReviewSummary aggregates the reviews of one cafe.
type ReviewSummary struct {
	CafeID          string  `json:"cafe_id"`
	Total           int     `json:"total"`
	Positive        int     `json:"positive"`
	PercentPositive float64 `json:"percent_positive"`
}

// FollowerRelationship is a row of followers.
type FollowerRelationship struct {
	ID          string    `json:"id"`
	FollowerID  string    `json:"follower_id"`
	FollowingID string    `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// FollowProfile is a profile on either side of a follow edge, with the
// time the edge was created.
type FollowProfile struct {
	Profile
	FollowedAt time.Time `json:"followed_at"`
}

// FollowerStats counts both sides of a user's follow graph.
type FollowerStats struct {
	UserID         string `json:"user_id"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
}

// Bookmark is a row of bookmarks.
type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CafeID    string    `json:"cafe_id"`
	CreatedAt time.Time `json:"created_at"`
	Cafe      *Cafe     `json:"cafe,omitempty"`
}

// VoteKind distinguishes the two vote tables.
type VoteKind string

const (
	VoteNone VoteKind = ""
	VoteUp   VoteKind = "upvote"
	VoteDown VoteKind = "downvote"
)

// Opposite returns the other vote kind.
func (k VoteKind) Opposite() VoteKind {
	switch k {
	case VoteUp:
		return VoteDown
	case VoteDown:
		return VoteUp
	default:
		return VoteNone
	}
}

// Vote is a row of either vote table.
type Vote struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CafeID    string    `json:"cafe_id"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteStatus is a user's current vote on a cafe plus the cafe counters.
type VoteStatus struct {
	CafeID    string   `json:"cafe_id"`
	Vote      VoteKind `json:"vote,omitempty"`
	Upvotes   int      `json:"upvotes"`
	Downvotes int      `json:"downvotes"`
}

// SubmissionStatus is the review state of a cafe submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return true
	}
	return false
}

// CafeSubmission is a row of cafe_submissions.
type CafeSubmission struct {
	ID                   string           `json:"id"`
	SubmittedBy          string           `json:"submitted_by"`
	Name                 string           `json:"name"`
	Description          string           `json:"description,omitempty"`
	Location             Location         `json:"location"`
	Wifi                 bool             `json:"wifi"`
	PowerOutletAvailable bool             `json:"powerOutletAvailable"`
	ImageURLs            []string         `json:"image_urls"`
	Status               SubmissionStatus `json:"status"`
	ReviewedBy           string           `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time       `json:"reviewed_at,omitempty"`
	AdminNotes           string           `json:"admin_notes,omitempty"`
	RejectionReason      string           `json:"rejection_reason,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// ToCafe builds the cafe row created when the submission is approved.
func (s *CafeSubmission) ToCafe() *Cafe {
	return &Cafe{
		Name:                 s.Name,
		Description:          s.Description,
		Location:             s.Location,
		Wifi:                 s.Wifi,
		PowerOutletAvailable: s.PowerOutletAvailable,
		ImageURLs:            append([]string(nil), s.ImageURLs...),
		SubmittedBy:          s.SubmittedBy,
	}
}

// SubmissionStats counts submissions by status.
type SubmissionStats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

// ActivityKind is the source table of a feed item.
type ActivityKind string

const (
	ActivityBookmark ActivityKind = "bookmark"
	ActivityReview   ActivityKind = "review"
	ActivityUpvote   ActivityKind = "upvote"
	ActivityDownvote ActivityKind = "downvote"
)

// ActivityKinds lists every feed source in a stable order.
var ActivityKinds = []ActivityKind{ActivityBookmark, ActivityReview, ActivityUpvote, ActivityDownvote}

// FeedActivity is one item of an activity feed.
type FeedActivity struct {
	ID           string       `json:"id"`
	Kind         ActivityKind `json:"kind"`
	ActorID      string       `json:"actor_id"`
	Actor        *Profile     `json:"actor,omitempty"`
	CafeID       string       `json:"cafe_id"`
	Cafe         *CafeSummary `json:"cafe,omitempty"`
	Rating       *bool        `json:"rating,omitempty"`
	Comment      string       `json:"comment,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	RelativeTime string       `json:"relative_time,omitempty"`
	Summary      string       `json:"summary,omitempty"`
}

// Feed is one page of activity.
type Feed struct {
	Items      []FeedActivity `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
	// Degraded names the activity sources that failed for this page.
	Degraded []ActivityKind `json:"degraded,omitempty"`
}

// SessionUser identifies the owner of a session.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated platform session.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         SessionUser `json:"user"`
	Profile      *Profile    `json:"profile,omitempty"`
	IsAdmin      bool        `json:"is_admin,omitempty"`
}

// Expired reports whether the access token expires within skew of now.
func (s *Session) Expired(now time.Time, skew time.Duration) bool {
	if s == nil || s.AccessToken == "" {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}
