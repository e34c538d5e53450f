package followers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	"github.com/brewmap/brewmap/services/common/servicetest"
)

// mockRepo is an in-memory follower graph.
type mockRepo struct {
	mu    sync.Mutex
	edges []domain.FollowerRelationship
	clock time.Time
}

func (m *mockRepo) Follow(_ context.Context, a, b string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edges {
		if e.FollowerID == a && e.FollowingID == b {
			return nil
		}
	}
	m.clock = m.clock.Add(time.Minute)
	m.edges = append(m.edges, domain.FollowerRelationship{ID: a + ">" + b, FollowerID: a, FollowingID: b, CreatedAt: m.clock})
	return nil
}

func (m *mockRepo) Unfollow(_ context.Context, a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.edges {
		if e.FollowerID == a && e.FollowingID == b {
			m.edges = append(m.edges[:i], m.edges[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Exists(_ context.Context, a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edges {
		if e.FollowerID == a && e.FollowingID == b {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) filter(match func(domain.FollowerRelationship) bool) []domain.FollowerRelationship {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FollowerRelationship
	for i := len(m.edges) - 1; i >= 0; i-- {
		if match(m.edges[i]) {
			out = append(out, m.edges[i])
		}
	}
	return out
}

func (m *mockRepo) ListFollowers(_ context.Context, id string) ([]domain.FollowerRelationship, error) {
	return m.filter(func(e domain.FollowerRelationship) bool { return e.FollowingID == id }), nil
}

func (m *mockRepo) ListFollowing(_ context.Context, id string) ([]domain.FollowerRelationship, error) {
	return m.filter(func(e domain.FollowerRelationship) bool { return e.FollowerID == id }), nil
}

func (m *mockRepo) CountFollowers(ctx context.Context, id string) (int, error) {
	rows, _ := m.ListFollowers(ctx, id)
	return len(rows), nil
}

func (m *mockRepo) CountFollowing(ctx context.Context, id string) (int, error) {
	rows, _ := m.ListFollowing(ctx, id)
	return len(rows), nil
}

type mockProfiles struct {
	byID       map[string]*domain.Profile
	batchCalls int
}

func (m *mockProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	if p, ok := m.byID[id]; ok {
		return p, nil
	}
	return nil, errors.NotFound("profile", id)
}

func (m *mockProfiles) GetProfiles(_ context.Context, ids []string) (map[string]*domain.Profile, error) {
	m.batchCalls++
	out := map[string]*domain.Profile{}
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newTestService() (*Service, *mockRepo, *mockProfiles) {
	repo := &mockRepo{clock: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	profiles := &mockProfiles{byID: map[string]*domain.Profile{
		"a": {ID: "a", Username: "ada"},
		"b": {ID: "b", Username: "bob"},
		"c": {ID: "c", Username: "cyd"},
	}}
	svc := New(Config{Repo: repo, Profiles: profiles, Metrics: metrics.New(), Logger: logging.NewDiscard()})
	return svc, repo, profiles
}

func TestFollowThenStats(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	before, err := svc.GetFollowerStats(ctx, "b")
	if err != nil {
		t.Fatalf("GetFollowerStats: %v", err)
	}
	if err := svc.FollowUser(ctx, "a", "b"); err != nil {
		t.Fatalf("FollowUser: %v", err)
	}
	following, err := svc.IsFollowing(ctx, "a", "b")
	if err != nil || !following {
		t.Fatalf("IsFollowing() = %v, %v", following, err)
	}
	after, _ := svc.GetFollowerStats(ctx, "b")
	if after.FollowersCount != before.FollowersCount+1 {
		t.Fatalf("followers_count = %d, want %d", after.FollowersCount, before.FollowersCount+1)
	}

	if err := svc.FollowUser(ctx, "a", "b"); err != nil {
		t.Fatalf("second FollowUser: %v", err)
	}
	again, _ := svc.GetFollowerStats(ctx, "b")
	if again.FollowersCount != after.FollowersCount {
		t.Fatal("following twice must not add a second edge")
	}
}

func TestFollowRejectsSelfAndUnknown(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.FollowUser(context.Background(), "a", "a"); !errors.IsValidation(err) {
		t.Fatalf("self follow error = %v", err)
	}
	if err := svc.FollowUser(context.Background(), "a", "ghost"); !errors.IsNotFound(err) {
		t.Fatalf("unknown user error = %v", err)
	}
}

func TestUnfollowIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_ = svc.FollowUser(ctx, "a", "b")

	if err := svc.UnfollowUser(ctx, "a", "b"); err != nil {
		t.Fatalf("UnfollowUser: %v", err)
	}
	if err := svc.UnfollowUser(ctx, "a", "b"); err != nil {
		t.Fatalf("second UnfollowUser: %v", err)
	}
	if ok, _ := svc.IsFollowing(ctx, "a", "b"); ok {
		t.Fatal("still following after unfollow")
	}
}

func TestGetFollowingBatchesProfiles(t *testing.T) {
	svc, _, profiles := newTestService()
	ctx := context.Background()
	_ = svc.FollowUser(ctx, "a", "b")
	_ = svc.FollowUser(ctx, "a", "c")

	rows, err := svc.GetFollowing(ctx, "a")
	if err != nil {
		t.Fatalf("GetFollowing: %v", err)
	}
	if len(rows) != 2 || rows[0].Username != "cyd" || rows[1].Username != "bob" {
		t.Fatalf("rows = %+v, want newest first", rows)
	}
	if profiles.batchCalls != 1 {
		t.Fatalf("profile lookups = %d, want 1", profiles.batchCalls)
	}

	ids, _ := svc.GetFollowingIDs(ctx, "a")
	if len(ids) != 2 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestHandlers(t *testing.T) {
	svc, _, _ := newTestService()
	router := mux.NewRouter()
	svc.RegisterRoutes(router, servicetest.Guards())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.Request(httptest.NewRequest(http.MethodPost, "/users/b/follow", nil), "a"))
	if rr.Code != http.StatusOK {
		t.Fatalf("follow status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/b/followers", nil))
	var rows []domain.FollowProfile
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil || len(rows) != 1 || rows[0].ID != "a" {
		t.Fatalf("followers = %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/b/stats", nil))
	var stats domain.FollowerStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil || stats.FollowersCount != 1 {
		t.Fatalf("stats = %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/b/follow", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous follow status = %d", rr.Code)
	}
}
