package submissions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	"github.com/brewmap/brewmap/services/common/servicetest"
	submissionssupabase "github.com/brewmap/brewmap/services/submissions/supabase"
)

var (
	pngData  = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	jpegData = append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 64)...)
	gifData  = append([]byte("GIF89a"), make([]byte, 64)...)
)

type mockRepo struct {
	mu        sync.Mutex
	rows      map[string]*domain.CafeSubmission
	insertErr error
	n         int
}

func newMockRepo() *mockRepo { return &mockRepo{rows: map[string]*domain.CafeSubmission{}} }

func (m *mockRepo) Insert(_ context.Context, row submissionssupabase.NewSubmission) (*domain.CafeSubmission, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.n++
	sub := &domain.CafeSubmission{
		ID:                   fmt.Sprintf("s%d", m.n),
		SubmittedBy:          row.SubmittedBy,
		Name:                 row.Name,
		Location:             row.Location,
		Wifi:                 row.Wifi,
		PowerOutletAvailable: row.PowerOutletAvailable,
		ImageURLs:            row.ImageURLs,
		Status:               row.Status,
	}
	m.rows[sub.ID] = sub
	cp := *sub
	return &cp, nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*domain.CafeSubmission, error) {
	sub, ok := m.rows[id]
	if !ok {
		return nil, errors.NotFound("submission", id)
	}
	cp := *sub
	return &cp, nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID string) ([]domain.CafeSubmission, error) {
	var out []domain.CafeSubmission
	for _, sub := range m.rows {
		if sub.SubmittedBy == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *mockRepo) List(_ context.Context, status domain.SubmissionStatus) ([]domain.CafeSubmission, error) {
	var out []domain.CafeSubmission
	for _, sub := range m.rows {
		if status == "" || sub.Status == status {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *mockRepo) Count(_ context.Context, status domain.SubmissionStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sub := range m.rows {
		if sub.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) DeletePending(_ context.Context, id, userID string) (*domain.CafeSubmission, error) {
	sub, ok := m.rows[id]
	if !ok || sub.SubmittedBy != userID || sub.Status != domain.SubmissionPending {
		return nil, nil
	}
	delete(m.rows, id)
	return sub, nil
}

func (m *mockRepo) Transition(_ context.Context, id string, from domain.SubmissionStatus, patch submissionssupabase.Review) (*domain.CafeSubmission, error) {
	sub, ok := m.rows[id]
	if !ok || sub.Status != from {
		return nil, nil
	}
	sub.Status = patch.Status
	sub.ReviewedAt = patch.ReviewedAt
	sub.ReviewedBy, sub.AdminNotes, sub.RejectionReason = "", "", ""
	if patch.ReviewedBy != nil {
		sub.ReviewedBy = *patch.ReviewedBy
	}
	if patch.AdminNotes != nil {
		sub.AdminNotes = *patch.AdminNotes
	}
	if patch.RejectionReason != nil {
		sub.RejectionReason = *patch.RejectionReason
	}
	cp := *sub
	return &cp, nil
}

type mockImages struct {
	uploaded  map[string]string
	removed   []string
	failAfter int
}

func newMockImages() *mockImages { return &mockImages{uploaded: map[string]string{}, failAfter: -1} }

func (m *mockImages) Upload(_ context.Context, path string, _ []byte, contentType string) (string, error) {
	if m.failAfter == len(m.uploaded) {
		return "", errors.Upstream("storage unavailable", nil)
	}
	m.uploaded[path] = contentType
	return "https://cdn.test/cafe-images/" + path, nil
}

func (m *mockImages) Remove(_ context.Context, paths []string) error {
	m.removed = append(m.removed, paths...)
	return nil
}

func (m *mockImages) PathFromURL(u string) (string, bool) {
	return strings.CutPrefix(u, "https://cdn.test/cafe-images/")
}

type mockCafes struct {
	created []*domain.Cafe
	err     error
}

func (m *mockCafes) CreateCafe(_ context.Context, cafe *domain.Cafe) (*domain.Cafe, error) {
	if m.err != nil {
		return nil, m.err
	}
	c := *cafe
	c.ID = fmt.Sprintf("c%d", len(m.created)+1)
	m.created = append(m.created, &c)
	return &c, nil
}

type fixture struct {
	svc    *Service
	repo   *mockRepo
	images *mockImages
	cafes  *mockCafes
}

func newFixture() *fixture {
	f := &fixture{repo: newMockRepo(), images: newMockImages(), cafes: &mockCafes{}}
	f.svc = New(Config{Repo: f.repo, Images: f.images, Cafes: f.cafes, Metrics: metrics.New(), Logger: logging.NewDiscard()})
	ids := 0
	f.svc.newID = func() string { ids++; return fmt.Sprintf("img%d", ids) }
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func validInput(images ...[]byte) *Input {
	in := &Input{Name: " Bean There ", Address: "1 Main St", City: "Leeds", Wifi: true}
	for i, data := range images {
		in.Images = append(in.Images, Image{Filename: fmt.Sprintf("%d.bin", i), Data: data})
	}
	return in
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
		field string
	}{
		{"no images", validInput(), "images"},
		{"too many images", validInput(pngData, pngData, pngData, pngData, pngData, pngData), "images"},
		{"missing name", &Input{Address: "a", City: "b", Images: []Image{{Data: pngData}}}, "name"},
		{"missing city", &Input{Name: "a", Address: "b", Images: []Image{{Data: pngData}}}, "city"},
		{"blank address", &Input{Name: "a", Address: "   ", City: "c", Images: []Image{{Data: pngData}}}, "address"},
		{"latitude out of range", func() *Input { in := validInput(pngData); in.Lat = 91; return in }(), "lat"},
		{"gif", validInput(gifData), ""},
		{"oversized", validInput(append(bytes.Clone(pngData), make([]byte, MaxImageBytes)...)), ""},
		{"empty image", validInput([]byte{}), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.input)
			require.True(t, errors.IsValidation(err), "err = %v", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, errors.GetServiceError(err).Details["field"])
			}
		})
	}

	types, err := Validate(validInput(pngData, jpegData))
	require.NoError(t, err)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, types)
}

func TestSubmitWithoutImagesMakesNoCalls(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SubmitCafe(context.Background(), "u1", validInput())
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, f.images.uploaded)
	assert.Zero(t, f.repo.n)
}

func TestSubmitCafe(t *testing.T) {
	f := newFixture()
	sub, err := f.svc.SubmitCafe(context.Background(), "u1", validInput(pngData, jpegData))
	require.NoError(t, err)

	assert.Equal(t, domain.SubmissionPending, sub.Status)
	assert.Equal(t, "Bean There", sub.Name)
	assert.Equal(t, map[string]string{"u1/img1.png": "image/png", "u1/img2.jpg": "image/jpeg"}, f.images.uploaded)
	assert.Equal(t, []string{"https://cdn.test/cafe-images/u1/img1.png", "https://cdn.test/cafe-images/u1/img2.jpg"}, sub.ImageURLs)
}

func TestSubmitCleansUpWhenInsertFails(t *testing.T) {
	f := newFixture()
	f.repo.insertErr = errors.Forbidden("row-level security")

	_, err := f.svc.SubmitCafe(context.Background(), "u1", validInput(pngData, pngData))
	assert.True(t, errors.IsForbidden(err))
	assert.ElementsMatch(t, []string{"u1/img1.png", "u1/img2.png"}, f.images.removed)
}

func TestSubmitCleansUpWhenUploadFails(t *testing.T) {
	f := newFixture()
	f.images.failAfter = 1

	_, err := f.svc.SubmitCafe(context.Background(), "u1", validInput(pngData, pngData))
	require.Error(t, err)
	assert.Equal(t, []string{"u1/img1.png"}, f.images.removed)
	assert.Zero(t, f.repo.n)
}

func TestApproveCreatesExactlyOneCafe(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sub, err := f.svc.SubmitCafe(ctx, "u1", validInput(pngData))
	require.NoError(t, err)

	res, err := f.svc.ApproveSubmission(ctx, "admin", sub.ID, "looks great")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionApproved, res.Submission.Status)
	assert.Equal(t, "admin", res.Submission.ReviewedBy)
	require.Len(t, f.cafes.created, 1)
	assert.Equal(t, sub.Name, f.cafes.created[0].Name)
	assert.Equal(t, sub.Location, f.cafes.created[0].Location)
	assert.Equal(t, "u1", f.cafes.created[0].SubmittedBy)

	_, err = f.svc.ApproveSubmission(ctx, "admin", sub.ID, "")
	assert.True(t, errors.IsConflict(err))
	assert.Len(t, f.cafes.created, 1)

	_, err = f.svc.ApproveSubmission(ctx, "admin", "missing", "")
	assert.True(t, errors.IsNotFound(err))
}

func TestApproveRevertsWhenCafeCreationFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sub, err := f.svc.SubmitCafe(ctx, "u1", validInput(pngData))
	require.NoError(t, err)
	f.cafes.err = errors.Upstream("insert failed", nil)

	_, err = f.svc.ApproveSubmission(ctx, "admin", sub.ID, "")
	require.Error(t, err)
	assert.Equal(t, domain.SubmissionPending, f.repo.rows[sub.ID].Status)
	assert.Empty(t, f.repo.rows[sub.ID].ReviewedBy)

	f.cafes.err = nil
	_, err = f.svc.ApproveSubmission(ctx, "admin", sub.ID, "")
	require.NoError(t, err)
}

func TestRejectSubmission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sub, _ := f.svc.SubmitCafe(ctx, "u1", validInput(pngData))

	_, err := f.svc.RejectSubmission(ctx, "admin", sub.ID, "  ")
	assert.True(t, errors.IsValidation(err))

	got, err := f.svc.RejectSubmission(ctx, "admin", sub.ID, "duplicate of Bean There")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionRejected, got.Status)
	assert.Equal(t, "duplicate of Bean There", got.RejectionReason)

	_, err = f.svc.ApproveSubmission(ctx, "admin", sub.ID, "")
	assert.True(t, errors.IsConflict(err))
}

func TestWithdrawSubmission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, _ := f.svc.SubmitCafe(ctx, "u1", validInput(pngData))
	b, _ := f.svc.SubmitCafe(ctx, "u1", validInput(pngData))
	_, err := f.svc.RejectSubmission(ctx, "admin", b.ID, "closed")
	require.NoError(t, err)

	assert.True(t, errors.IsForbidden(f.svc.WithdrawSubmission(ctx, "u2", a.ID)))
	assert.True(t, errors.IsConflict(f.svc.WithdrawSubmission(ctx, "u1", b.ID)))
	assert.True(t, errors.IsNotFound(f.svc.WithdrawSubmission(ctx, "u1", "nope")))

	require.NoError(t, f.svc.WithdrawSubmission(ctx, "u1", a.ID))
	assert.Equal(t, []string{"u1/img1.png"}, f.images.removed)
}

func TestStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.SubmitCafe(ctx, "u1", validInput(pngData))
		require.NoError(t, err)
	}
	_, err := f.svc.ApproveSubmission(ctx, "admin", "s1", "")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStats{Pending: 2, Approved: 1, Total: 3}, *stats)

	_, err = f.svc.ListSubmissions(ctx, "archived")
	assert.True(t, errors.IsValidation(err))
}

func multipartBody(t *testing.T, fields map[string]string, images ...[]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i, data := range images {
		part, err := mw.CreateFormFile("images", fmt.Sprintf("photo%d", i))
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandlers(t *testing.T) {
	f := newFixture()
	router := mux.NewRouter()
	f.svc.RegisterRoutes(router, servicetest.Guards())

	body, ct := multipartBody(t, map[string]string{
		"name": "Bean There", "address": "1 Main St", "city": "Leeds", "wifi": "true", "lat": "53.8",
	}, pngData)
	req := servicetest.Request(httptest.NewRequest(http.MethodPost, "/submissions", body), "u1")
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var sub domain.CafeSubmission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sub))
	assert.True(t, sub.Wifi)
	assert.Equal(t, 53.8, sub.Location.Lat)

	body, ct = multipartBody(t, map[string]string{"name": "x", "address": "y", "city": "z"})
	req = servicetest.Request(httptest.NewRequest(http.MethodPost, "/submissions", body), "u1")
	req.Header.Set("Content-Type", ct)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.Request(httptest.NewRequest(http.MethodPost, "/admin/submissions/"+sub.ID+"/approve", nil), "u1"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.AdminRequest(httptest.NewRequest(http.MethodPost, "/admin/submissions/"+sub.ID+"/approve", nil), "admin"))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.AdminRequest(httptest.NewRequest(http.MethodPost, "/admin/submissions/"+sub.ID+"/reject", strings.NewReader(`{"reason":"late"}`)), "admin"))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, servicetest.AdminRequest(httptest.NewRequest(http.MethodGet, "/admin/submissions/stats", nil), "admin"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"approved":1`)
}
