package feed

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	feedsupabase "github.com/brewmap/brewmap/services/feed/supabase"
)

// EncodeCursor renders the position after item as an opaque token.
func EncodeCursor(item domain.FeedActivity) string {
	raw, _ := json.Marshal(feedsupabase.Cursor{CreatedAt: item.CreatedAt.UTC(), ID: item.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token from EncodeCursor. An empty token is the
// first page.
func DecodeCursor(token string) (*feedsupabase.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Validation("invalid cursor")
	}
	var c feedsupabase.Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.CreatedAt.IsZero() || c.ID == "" {
		return nil, errors.Validation("invalid cursor")
	}
	return &c, nil
}

// after reports whether item sorts after c in feed order.
func after(item domain.FeedActivity, c *feedsupabase.Cursor) bool {
	if c == nil {
		return true
	}
	if !item.CreatedAt.Equal(c.CreatedAt) {
		return item.CreatedAt.Before(c.CreatedAt)
	}
	return compareIDs(item.ID, c.ID) < 0
}

// newer reports whether a sorts before b: newest first, then by id
// descending.
func newer(a, b domain.FeedActivity) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if n := compareIDs(a.ID, b.ID); n != 0 {
		return n > 0
	}
	return a.Kind < b.Kind
}

// compareIDs orders ids the way Postgres orders the id column: numerically
// for integer keys, lexically otherwise (canonical UUID text sorts like
// the UUID itself).
func compareIDs(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
