package supabase

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/supabase/clienttest"
)

func TestListAppliesKeyset(t *testing.T) {
	p := clienttest.New(t, clienttest.JSON(http.StatusOK,
		`[{"id":"r1","user_id":"u1","cafe_id":"c1","rating":true,"comment":"good","created_at":"2026-03-01T11:58:00Z"}]`))
	repo := NewRepository(p.Client, Tables{Upvotes: "user_upvotes", Downvotes: "user_downvotes"})
	cursor := &Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ID: "r5"}

	rows, err := repo.List(context.Background(), domain.ActivityReview, []string{"u1", "u2"}, cursor, 21)
	if err != nil || len(rows) != 1 {
		t.Fatalf("List() = %v, %v", rows, err)
	}
	if rows[0].Kind != domain.ActivityReview || rows[0].Rating == nil || !*rows[0].Rating || rows[0].ActorID != "u1" {
		t.Fatalf("row = %+v", rows[0])
	}

	req := p.Last()
	if req.Path != "/rest/v1/reviews" {
		t.Fatalf("path = %s", req.Path)
	}
	q := req.Query
	if q.Get("limit") != "21" || q.Get("order") != "created_at.desc,id.desc" {
		t.Fatalf("query = %v", q)
	}
	if !strings.Contains(q.Get("user_id"), "u1") || !strings.HasPrefix(q.Get("user_id"), "in.(") {
		t.Fatalf("user_id = %q", q.Get("user_id"))
	}
	want := `(created_at.lt."2026-03-01T12:00:00Z",and(created_at.eq."2026-03-01T12:00:00Z",id.lt."r5"))`
	if q.Get("or") != want {
		t.Fatalf("or = %q", q.Get("or"))
	}
}

func TestListUsesConfiguredVoteTable(t *testing.T) {
	p := clienttest.New(t, clienttest.JSON(http.StatusOK, `[]`))
	repo := NewRepository(p.Client, Tables{Upvotes: "upvotes", Downvotes: "downvotes"})

	if _, err := repo.List(context.Background(), domain.ActivityDownvote, []string{"u1"}, nil, 5); err != nil {
		t.Fatalf("List: %v", err)
	}
	if req := p.Last(); req.Path != "/rest/v1/downvotes" || req.Query.Has("or") {
		t.Fatalf("request = %s %v", req.Path, req.Query)
	}
}

func TestListWithoutUsersSkipsRequest(t *testing.T) {
	p := clienttest.New(t, clienttest.JSON(http.StatusOK, `[]`))
	repo := NewRepository(p.Client, Tables{Upvotes: "a", Downvotes: "b"})

	rows, err := repo.List(context.Background(), domain.ActivityBookmark, nil, nil, 5)
	if err != nil || rows != nil || len(p.Requests()) != 0 {
		t.Fatalf("List() = %v, %v, requests=%d", rows, err, len(p.Requests()))
	}
}
