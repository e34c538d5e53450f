package supabase

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/brewmap/brewmap/supabase/clienttest"
)

func TestFollowUpsertsOnEdge(t *testing.T) {
	p := clienttest.New(t, clienttest.JSON(http.StatusCreated, `[{"id":"f1","follower_id":"a","following_id":"b"}]`))
	repo := NewRepository(p.Client)

	if err := repo.Follow(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	req := p.Last()
	if req.Method != http.MethodPost || req.Path != "/rest/v1/followers" {
		t.Fatalf("request = %s %s", req.Method, req.Path)
	}
	if req.Query.Get("on_conflict") != "follower_id,following_id" {
		t.Fatalf("on_conflict = %q", req.Query.Get("on_conflict"))
	}
	if !strings.Contains(req.Header.Get("Prefer"), "resolution=merge-duplicates") {
		t.Fatalf("Prefer = %q", req.Header.Get("Prefer"))
	}
}

func TestUnfollowReportsRemoval(t *testing.T) {
	p := clienttest.New(t, clienttest.JSON(http.StatusOK, `[]`))
	repo := NewRepository(p.Client)

	removed, err := repo.Unfollow(context.Background(), "a", "b")
	if err != nil || removed {
		t.Fatalf("Unfollow() = %v, %v", removed, err)
	}
	q := p.Last().Query
	if q.Get("follower_id") != "eq.a" || q.Get("following_id") != "eq.b" {
		t.Fatalf("filters = %v", q)
	}
}

func TestCountFollowersUsesExactCount(t *testing.T) {
	p := clienttest.New(t, clienttest.Count("7"))
	repo := NewRepository(p.Client)

	n, err := repo.CountFollowers(context.Background(), "b")
	if err != nil || n != 7 {
		t.Fatalf("CountFollowers() = %d, %v", n, err)
	}
	req := p.Last()
	if req.Method != http.MethodHead || req.Header.Get("Prefer") != "count=exact" || req.Query.Get("following_id") != "eq.b" {
		t.Fatalf("request = %s %v %v", req.Method, req.Header, req.Query)
	}
}

func TestListFollowersOrdersNewestFirst(t *testing.T) {
	p := clienttest.New(t, clienttest.JSON(http.StatusOK, `[{"id":"f2","follower_id":"c","following_id":"b"}]`))
	repo := NewRepository(p.Client)

	rows, err := repo.ListFollowers(context.Background(), "b")
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListFollowers() = %v, %v", rows, err)
	}
	if got := p.Last().Query.Get("order"); got != "created_at.desc" {
		t.Fatalf("order = %q", got)
	}
}
