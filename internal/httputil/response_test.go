package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	svcerrors "github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return resp.Error
}

func TestWriteErrorServiceError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cafes/x", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-1"))
	rr := httptest.NewRecorder()

	WriteError(rr, req, svcerrors.NotFound("cafe", "x"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Code != "NOT_FOUND" || body.TraceID != "trace-1" {
		t.Fatalf("body = %+v", body)
	}
}

func TestWriteErrorHidesPlainErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("dial tcp 10.0.0.1: refused"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "10.0.0.1") {
		t.Fatalf("internal detail leaked: %s", rr.Body.String())
	}
}

func TestWriteErrorLogsServerFailures(t *testing.T) {
	l := logging.NewDiscard()
	l.SetLevel(logrus.InfoLevel)
	hook := logtest.NewLocal(l.Logger)
	SetLogger(l)
	t.Cleanup(func() { SetLogger(logging.NewDefault("http")) })

	req := httptest.NewRequest(http.MethodGet, "/cafes", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-9"))
	WriteError(httptest.NewRecorder(), req, fmt.Errorf("unmarshal response: unexpected end of JSON input"))

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("entry = %+v, want one error entry", entry)
	}
	if entry.Data["trace_id"] != "trace-9" || entry.Data["path"] != "/cafes" || entry.Data["status"] != http.StatusInternalServerError {
		t.Fatalf("fields = %v", entry.Data)
	}
	if got := fmt.Sprint(entry.Data[logrus.ErrorKey]); !strings.Contains(got, "unmarshal response") {
		t.Fatalf("error = %q", got)
	}

	hook.Reset()
	WriteError(httptest.NewRecorder(), req, svcerrors.NotFound("cafe", "x"))
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("client errors should not be logged: %v", hook.AllEntries())
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Bean There"}`))
	if !DecodeJSON(rr, req, &v) || v.Name != "Bean There" {
		t.Fatalf("DecodeJSON() failed: %+v", v)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	if DecodeJSON(rr, req, &v) {
		t.Fatal("DecodeJSON() accepted invalid JSON")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	rr = httptest.NewRecorder()
	big := `{"name":"` + strings.Repeat("a", maxJSONBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	if DecodeJSON(rr, req, &v) {
		t.Fatal("DecodeJSON() accepted oversized body")
	}
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
}

func TestRequireUserIDAndAdmin(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := RequireUserID(rr, req); ok {
		t.Fatal("RequireUserID() without user should fail")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	ctx := logging.WithUserID(req.Context(), "u1")
	rr = httptest.NewRecorder()
	if RequireAdminRole(rr, req.WithContext(ctx)) {
		t.Fatal("RequireAdminRole() should reject non-admin")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	if !RequireAdminRole(rr, req.WithContext(logging.WithRole(ctx, "admin"))) {
		t.Fatal("RequireAdminRole() should accept admin")
	}
}

func TestReadAllLimits(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(bytes.NewReader([]byte("abcdef")), 4)
	if err != nil || !truncated || string(data) != "abcd" {
		t.Fatalf("ReadAllWithLimit() = %q, %v, %v", data, truncated, err)
	}
	if _, err := ReadAllStrict(bytes.NewReader([]byte("abcdef")), 4); err == nil {
		t.Fatal("ReadAllStrict() should fail on oversized input")
	}
	if data, err := ReadAllStrict(bytes.NewReader([]byte("abcd")), 4); err != nil || string(data) != "abcd" {
		t.Fatalf("ReadAllStrict() = %q, %v", data, err)
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"", 20, 0, false},
		{"limit=5&offset=10", 5, 10, false},
		{"limit=500", 50, 0, false},
		{"limit=0", 0, 0, true},
		{"limit=abc", 0, 0, true},
		{"offset=-1", 0, 0, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/cafes?"+tt.query, nil)
		p, err := ParsePage(req, 20, 50)
		if tt.wantErr {
			if !svcerrors.IsValidation(err) {
				t.Errorf("ParsePage(%q) error = %v, want validation", tt.query, err)
			}
			continue
		}
		if err != nil || p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("ParsePage(%q) = %+v, %v", tt.query, p, err)
		}
	}
}
