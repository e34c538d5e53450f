package reviews

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/services/common/servicetest"
)

type mockRepo struct {
	mu      sync.Mutex
	reviews map[string]*domain.Review
	nextID  int
}

func newMockRepo() *mockRepo { return &mockRepo{reviews: map[string]*domain.Review{}} }

func (m *mockRepo) Get(_ context.Context, id string) (*domain.Review, error) {
	if r, ok := m.reviews[id]; ok {
		return r, nil
	}
	return nil, errors.NotFound("review", id)
}

func (m *mockRepo) GetByUserAndCafe(_ context.Context, userID, cafeID string) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(userID, cafeID); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *mockRepo) find(userID, cafeID string) *domain.Review {
	for _, r := range m.reviews {
		if r.UserID == userID && r.CafeID == cafeID {
			return r
		}
	}
	return nil
}

// Upsert merges on (user, cafe) like the reviews unique key.
func (m *mockRepo) Upsert(_ context.Context, userID, cafeID string, rating bool, comment string) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(userID, cafeID)
	if r == nil {
		m.nextID++
		r = &domain.Review{ID: fmt.Sprintf("r%d", m.nextID), UserID: userID, CafeID: cafeID}
		m.reviews[r.ID] = r
	}
	r.Rating, r.Comment = rating, comment
	cp := *r
	return &cp, nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	delete(m.reviews, id)
	return nil
}

func (m *mockRepo) ListByCafe(_ context.Context, cafeID string) ([]domain.Review, error) {
	var out []domain.Review
	for _, r := range m.reviews {
		if r.CafeID == cafeID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID string) ([]domain.Review, error) {
	return nil, nil
}

func (m *mockRepo) Count(_ context.Context, cafeID string, positiveOnly bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reviews {
		if r.CafeID == cafeID && (!positiveOnly || r.Rating) {
			n++
		}
	}
	return n, nil
}

func newTestService(repo *mockRepo) *Service {
	return New(Config{Repo: repo, Logger: logging.NewDiscard()})
}

func TestAddReviewReplacesEarlierReview(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, created, err := svc.AddReview(ctx, "u1", "c1", true, "  great flat white ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "great flat white", first.Comment)

	second, created, err := svc.AddReview(ctx, "u1", "c1", false, "went downhill")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.reviews, 1)
}

func TestAddReviewConcurrentWritesKeepOneRow(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.AddReview(context.Background(), "u1", "c1", i%2 == 0, fmt.Sprintf("take %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, repo.reviews, 1)
}

func TestAddReviewCommentLimitCountsCharacters(t *testing.T) {
	svc := newTestService(newMockRepo())

	_, _, err := svc.AddReview(context.Background(), "u1", "c1", true, strings.Repeat("é", MaxCommentLength))
	require.NoError(t, err, "1000 two-byte characters fit")

	_, _, err = svc.AddReview(context.Background(), "u2", "c1", true, strings.Repeat("a", MaxCommentLength+1))
	assert.True(t, errors.IsValidation(err))
}

func TestDeleteReviewOwnerOnly(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	rev, _, _ := svc.AddReview(context.Background(), "u1", "c1", true, "")

	err := svc.DeleteReview(context.Background(), "u2", rev.ID)
	assert.True(t, errors.IsForbidden(err))
	assert.NoError(t, svc.DeleteReview(context.Background(), "u1", rev.ID))
	assert.True(t, errors.IsNotFound(svc.DeleteReview(context.Background(), "u1", rev.ID)))
}

func TestSummary(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	_, _, _ = svc.AddReview(ctx, "u1", "c1", true, "")
	_, _, _ = svc.AddReview(ctx, "u2", "c1", true, "")
	_, _, _ = svc.AddReview(ctx, "u3", "c1", false, "")

	sum, err := svc.Summary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Positive)
	assert.Equal(t, 66.7, sum.PercentPositive)

	empty, err := svc.Summary(ctx, "c2")
	require.NoError(t, err)
	assert.Zero(t, empty.PercentPositive)
}

func TestHandlers(t *testing.T) {
	svc := newTestService(newMockRepo())
	router := mux.NewRouter()
	svc.RegisterRoutes(router, servicetest.Guards())

	post := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := servicetest.Request(httptest.NewRequest(http.MethodPost, "/cafes/c1/reviews", strings.NewReader(body)), "u1")
		router.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"comment":"no rating"}`).Code)
	assert.Equal(t, http.StatusCreated, post(`{"rating":true,"comment":"lovely"}`).Code)
	assert.Equal(t, http.StatusOK, post(`{"rating":false}`).Code)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.Request(httptest.NewRequest(http.MethodGet, "/cafes/c1/reviews/mine", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.Request(httptest.NewRequest(http.MethodGet, "/cafes/c1/reviews/mine", nil), "u9"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cafes/c1/reviews/summary", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)
}
