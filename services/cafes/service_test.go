package cafes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewmap/brewmap/internal/cache"
	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	"github.com/brewmap/brewmap/services/common/servicetest"
)

type mockRepo struct {
	mu    sync.Mutex
	cafes map[string]*domain.Cafe
	votes map[domain.VoteKind]map[[2]string]bool
	gets  int
	lists int
}

func newMockRepo(cafes ...domain.Cafe) *mockRepo {
	m := &mockRepo{
		cafes: map[string]*domain.Cafe{},
		votes: map[domain.VoteKind]map[[2]string]bool{domain.VoteUp: {}, domain.VoteDown: {}},
	}
	for i := range cafes {
		m.cafes[cafes[i].ID] = &cafes[i]
	}
	return m
}

func (m *mockRepo) List(_ context.Context, f Filter) ([]domain.Cafe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []domain.Cafe
	for _, c := range m.cafes {
		if f.Wifi != nil && c.Wifi != *f.Wifi {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*domain.Cafe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	c, ok := m.cafes[id]
	if !ok {
		return nil, errors.NotFound("cafe", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []string) ([]domain.Cafe, error) {
	var out []domain.Cafe
	for _, id := range ids {
		if c, ok := m.cafes[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockRepo) Search(context.Context, string, int) ([]domain.Cafe, error) { return nil, nil }

func (m *mockRepo) ListBySubmitter(context.Context, string) ([]domain.Cafe, error) { return nil, nil }

func (m *mockRepo) Create(_ context.Context, cafe *domain.Cafe) (*domain.Cafe, error) {
	c := *cafe
	c.ID = "new"
	m.cafes[c.ID] = &c
	return &c, nil
}

func (m *mockRepo) SetCounters(_ context.Context, id string, up, down int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cafes[id].Upvotes, m.cafes[id].Downvotes = up, down
	return nil
}

func (m *mockRepo) HasVote(_ context.Context, k domain.VoteKind, u, c string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.votes[k][[2]string{u, c}], nil
}

func (m *mockRepo) AddVote(_ context.Context, k domain.VoteKind, u, c string) error {
	m.votes[k][[2]string{u, c}] = true
	return nil
}

func (m *mockRepo) RemoveVote(_ context.Context, k domain.VoteKind, u, c string) (bool, error) {
	key := [2]string{u, c}
	had := m.votes[k][key]
	delete(m.votes[k], key)
	return had, nil
}

func newTestService(repo *mockRepo, c cache.Cache) *Service {
	return New(Config{Repo: repo, Cache: c, Metrics: metrics.New(), Logger: logging.NewDiscard()})
}

func TestVoteToggling(t *testing.T) {
	repo := newMockRepo(domain.Cafe{ID: "c1", Name: "Bean There", Upvotes: 4, Downvotes: 1})
	svc := newTestService(repo, nil)
	ctx := context.Background()

	st, err := svc.Upvote(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteUp, st.Vote)
	assert.Equal(t, 5, st.Upvotes)

	st, err = svc.Downvote(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteDown, st.Vote)
	assert.Equal(t, 4, st.Upvotes)
	assert.Equal(t, 2, st.Downvotes)
	assert.False(t, repo.votes[domain.VoteUp][[2]string{"u1", "c1"}])

	st, err = svc.Downvote(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteNone, st.Vote)
	assert.Equal(t, 1, st.Downvotes)

	status, err := svc.GetVoteStatus(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteNone, status.Vote)
	assert.Equal(t, 4, status.Upvotes)
}

func TestVoteCountersNeverNegative(t *testing.T) {
	repo := newMockRepo(domain.Cafe{ID: "c1", Name: "Drifted"})
	repo.votes[domain.VoteUp][[2]string{"u1", "c1"}] = true
	svc := newTestService(repo, nil)

	st, err := svc.Upvote(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Zero(t, st.Upvotes)
}

func TestVoteOnMissingCafe(t *testing.T) {
	svc := newTestService(newMockRepo(), nil)
	_, err := svc.Upvote(context.Background(), "u1", "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestGetCafeIsCachedUntilVote(t *testing.T) {
	repo := newMockRepo(domain.Cafe{ID: "c1", Name: "Bean There", Upvotes: 1})
	svc := newTestService(repo, cache.NewMemory())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cafe, err := svc.GetCafe(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, cafe.Upvotes)
	}
	assert.Equal(t, 1, repo.gets)

	_, err := svc.Upvote(ctx, "u1", "c1")
	require.NoError(t, err)

	cafe, err := svc.GetCafe(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, cafe.Upvotes)
}

func TestListCafesCachedPerFilter(t *testing.T) {
	wifi := true
	repo := newMockRepo(domain.Cafe{ID: "c1", Wifi: true}, domain.Cafe{ID: "c2"})
	svc := newTestService(repo, cache.NewMemory())
	ctx := context.Background()

	all, err := svc.ListCafes(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	_, _ = svc.ListCafes(ctx, Filter{})
	assert.Equal(t, 1, repo.lists)

	withWifi, err := svc.ListCafes(ctx, Filter{Wifi: &wifi})
	require.NoError(t, err)
	assert.Len(t, withWifi, 1)
	assert.Equal(t, 2, repo.lists)
}

func TestGetCafesDedups(t *testing.T) {
	svc := newTestService(newMockRepo(domain.Cafe{ID: "c1"}, domain.Cafe{ID: "c2"}), nil)
	got, err := svc.GetCafes(context.Background(), []string{"c1", "c1", "", "c2", "gone"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCreateCafeRequiresName(t *testing.T) {
	svc := newTestService(newMockRepo(), nil)
	_, err := svc.CreateCafe(context.Background(), &domain.Cafe{})
	assert.True(t, errors.IsValidation(err))

	created, err := svc.CreateCafe(context.Background(), &domain.Cafe{Name: "Fresh"})
	require.NoError(t, err)
	assert.Equal(t, "new", created.ID)
}

// failingCache serves from memory but cannot delete.
type failingCache struct{ *cache.Memory }

func (failingCache) Delete(context.Context, ...string) error {
	return fmt.Errorf("cache unavailable")
}

func (failingCache) DeletePrefix(context.Context, string) error {
	return fmt.Errorf("cache unavailable")
}

func TestCreateCafeLogsFailedInvalidation(t *testing.T) {
	l := logging.NewDiscard()
	l.SetLevel(logrus.InfoLevel)
	hook := logtest.NewLocal(l.Logger)
	svc := New(Config{Repo: newMockRepo(), Cache: failingCache{cache.NewMemory()}, Metrics: metrics.New(), Logger: l})

	_, err := svc.CreateCafe(context.Background(), &domain.Cafe{Name: "Fresh"})
	require.NoError(t, err, "a cache failure must not fail the write")

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "cache delete failed" {
			warned = true
			assert.EqualError(t, e.Data[logrus.ErrorKey].(error), "cache unavailable")
		}
	}
	assert.True(t, warned, "failed invalidation should be logged")
}

func TestHandlers(t *testing.T) {
	repo := newMockRepo(domain.Cafe{ID: "c1", Name: "Bean There"})
	svc := newTestService(repo, nil)
	router := mux.NewRouter()
	svc.RegisterRoutes(router, servicetest.Guards())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cafes?wifi=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cafes/search?q=bean", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cafes/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cafes/c1/upvote", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.Request(httptest.NewRequest(http.MethodPost, "/cafes/c1/upvote", nil), "u1"))
	require.Equal(t, http.StatusOK, rr.Code)
	var st domain.VoteStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, domain.VoteUp, st.Vote)
	assert.Equal(t, 1, st.Upvotes)
}
