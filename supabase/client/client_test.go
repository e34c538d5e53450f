package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   string
}

// fakePlatform records every request and answers with the handler's reply.
func fakePlatform(t *testing.T, reply http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		reply(w, r)
	}))
	t.Cleanup(server.Close)

	c, err := New(Config{URL: server.URL + "/", AnonKey: "anon-key", ServiceKey: "service-key"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c, &reqs
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{AnonKey: "k"}); err == nil {
		t.Fatal("New() without URL should fail")
	}
	if _, err := New(Config{URL: "https://x.supabase.co"}); err == nil {
		t.Fatal("New() without AnonKey should fail")
	}
	c, err := New(Config{URL: "https://x.supabase.co/", AnonKey: "k"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if c.BaseURL() != "https://x.supabase.co" {
		t.Fatalf("BaseURL() = %q", c.BaseURL())
	}
	if c.HasServiceKey() {
		t.Fatal("HasServiceKey() should be false")
	}
}

func TestQueryEncoding(t *testing.T) {
	c, _ := New(Config{URL: "https://x.supabase.co", AnonKey: "k"})
	q := c.From("cafes").
		Select("*,profiles(username)").
		Eq("city", "São Paulo").
		In("id", []string{"a", "b,c"}).
		Order("created_at", false).
		Order("id", false).
		Limit(10).
		Offset(20).
		Query()

	values, err := url.ParseQuery(q)
	if err != nil {
		t.Fatalf("ParseQuery() error: %v", err)
	}
	checks := map[string]string{
		"select": "*,profiles(username)",
		"city":   "eq.São Paulo",
		"id":     `in.("a","b,c")`,
		"order":  "created_at.desc,id.desc",
		"limit":  "10",
		"offset": "20",
	}
	for key, want := range checks {
		if got := values.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestExecuteHeadersFollowIdentity(t *testing.T) {
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	ctx := context.Background()
	if _, err := c.From("cafes").Select("*").Execute(ctx); err != nil {
		t.Fatalf("anon Execute() error: %v", err)
	}
	if _, err := c.From("cafes").Select("*").Execute(WithAccessToken(ctx, "user-jwt")); err != nil {
		t.Fatalf("user Execute() error: %v", err)
	}
	if _, err := c.From("cafes").Select("*").Execute(WithServiceRole(WithRequestID(ctx, "req-9"))); err != nil {
		t.Fatalf("service Execute() error: %v", err)
	}

	got := *reqs
	if len(got) != 3 {
		t.Fatalf("requests = %d, want 3", len(got))
	}
	cases := []struct {
		apikey, auth string
	}{
		{"anon-key", "Bearer anon-key"},
		{"anon-key", "Bearer user-jwt"},
		{"service-key", "Bearer service-key"},
	}
	for i, tc := range cases {
		if h := got[i].Header.Get("apikey"); h != tc.apikey {
			t.Errorf("request %d apikey = %q, want %q", i, h, tc.apikey)
		}
		if h := got[i].Header.Get("Authorization"); h != tc.auth {
			t.Errorf("request %d Authorization = %q, want %q", i, h, tc.auth)
		}
		if got[i].Path != "/rest/v1/cafes" {
			t.Errorf("request %d path = %q", i, got[i].Path)
		}
	}
	if got[2].Header.Get("X-Request-ID") != "req-9" {
		t.Errorf("X-Request-ID = %q", got[2].Header.Get("X-Request-ID"))
	}
}

func TestExecuteCountParsesContentRange(t *testing.T) {
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "*/42")
		w.WriteHeader(http.StatusOK)
	})

	n, err := c.From("followers").Eq("following_id", "u2").ExecuteCount(context.Background())
	if err != nil {
		t.Fatalf("ExecuteCount() error: %v", err)
	}
	if n != 42 {
		t.Fatalf("count = %d, want 42", n)
	}
	req := (*reqs)[0]
	if req.Method != http.MethodHead {
		t.Errorf("method = %s, want HEAD", req.Method)
	}
	if req.Header.Get("Prefer") != "count=exact" {
		t.Errorf("Prefer = %q", req.Header.Get("Prefer"))
	}
	if req.Query.Get("following_id") != "eq.u2" {
		t.Errorf("filter = %q", req.Query.Get("following_id"))
	}
}

func TestSingleNoRowsIsAPIError(t *testing.T) {
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned","details":"The result contains 0 rows"}`))
	})

	_, err := c.From("profiles").Select("*").Eq("id", "missing").Single().Execute(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotAcceptable || apiErr.Code != "PGRST116" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if apiErr.Details != "The result contains 0 rows" {
		t.Fatalf("details = %q", apiErr.Details)
	}
	if accept := (*reqs)[0].Header.Get("Accept"); accept != "application/vnd.pgrst.object+json" {
		t.Fatalf("Accept = %q", accept)
	}
}

func TestWritesSendPreferHeaders(t *testing.T) {
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"f1"}]`))
	})
	ctx := context.Background()
	row := map[string]string{"follower_id": "a", "following_id": "b"}

	if _, err := c.From("followers").ExecuteUpsert(ctx, row, "follower_id,following_id"); err != nil {
		t.Fatalf("ExecuteUpsert() error: %v", err)
	}
	if _, err := c.From("cafe_submissions").Eq("id", "s1").Eq("status", "pending").ExecuteUpdate(ctx, map[string]string{"status": "approved"}); err != nil {
		t.Fatalf("ExecuteUpdate() error: %v", err)
	}

	upsert := (*reqs)[0]
	if upsert.Query.Get("on_conflict") != "follower_id,following_id" {
		t.Errorf("on_conflict = %q", upsert.Query.Get("on_conflict"))
	}
	if !strings.Contains(upsert.Header.Get("Prefer"), "resolution=merge-duplicates") {
		t.Errorf("Prefer = %q", upsert.Header.Get("Prefer"))
	}

	update := (*reqs)[1]
	if update.Method != http.MethodPatch {
		t.Errorf("method = %s", update.Method)
	}
	if update.Query.Get("id") != "eq.s1" || update.Query.Get("status") != "eq.pending" {
		t.Errorf("filters = %v", update.Query)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(update.Body), &body); err != nil || body["status"] != "approved" {
		t.Errorf("body = %q", update.Body)
	}
}

func TestUnfilteredMutationsRefused(t *testing.T) {
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	if _, err := c.From("cafes").ExecuteUpdate(ctx, map[string]int{"upvotes": 0}); err == nil {
		t.Fatal("ExecuteUpdate() without filters should fail")
	}
	if _, err := c.From("cafes").ExecuteDelete(ctx); err == nil {
		t.Fatal("ExecuteDelete() without filters should fail")
	}
	if len(*reqs) != 0 {
		t.Fatalf("requests sent = %d, want 0", len(*reqs))
	}
}

func TestAuthSignInAndSignUp(t *testing.T) {
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"u1","email":"a@b.c"}}`))
		case "/auth/v1/signup":
			// confirmation pending: bare user
			w.Write([]byte(`{"id":"u2","email":"new@b.c"}`))
		case "/auth/v1/user":
			if r.Header.Get("Authorization") != "Bearer at" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"msg":"invalid JWT"}`))
				return
			}
			w.Write([]byte(`{"id":"u1","email":"a@b.c","app_metadata":{"role":"admin"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	session, err := c.Auth().SignIn(ctx, "a@b.c", "secret")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if session.AccessToken != "at" || session.User == nil || session.User.ID != "u1" {
		t.Fatalf("session = %+v", session)
	}
	if (*reqs)[0].Query.Get("grant_type") != "password" {
		t.Fatalf("grant_type = %q", (*reqs)[0].Query.Get("grant_type"))
	}

	signup, err := c.Auth().SignUp(ctx, "new@b.c", "secret", map[string]any{"username": "newbie"})
	if err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	if signup.AccessToken != "" || signup.User == nil || signup.User.ID != "u2" {
		t.Fatalf("signup = %+v", signup)
	}
	if !strings.Contains((*reqs)[1].Body, `"username":"newbie"`) {
		t.Fatalf("signup body = %s", (*reqs)[1].Body)
	}

	user, err := c.Auth().GetUser(ctx, "at")
	if err != nil {
		t.Fatalf("GetUser() error: %v", err)
	}
	if user.AppMetadata["role"] != "admin" {
		t.Fatalf("app_metadata = %v", user.AppMetadata)
	}

	_, err = c.Auth().GetUser(ctx, "bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "invalid JWT" {
		t.Fatalf("GetUser(bad) error = %v", err)
	}
}

func TestStorageUploadAndPublicURL(t *testing.T) {
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Key":"cafe-images/u1/a.png"}`))
	})
	bucket := c.Storage().From("cafe-images")

	if _, err := bucket.Upload(context.Background(), "u1/a b.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	req := (*reqs)[0]
	if req.Path != "/storage/v1/object/cafe-images/u1/a%20b.png" {
		t.Fatalf("path = %q", req.Path)
	}
	if req.Header.Get("Content-Type") != "image/png" || req.Header.Get("x-upsert") != "false" {
		t.Fatalf("headers = %v", req.Header)
	}

	public := bucket.PublicURL("u1/a b.png")
	if !strings.HasSuffix(public, "/storage/v1/object/public/cafe-images/u1/a%20b.png") {
		t.Fatalf("PublicURL() = %q", public)
	}
	path, ok := bucket.PathFromPublicURL(public)
	if !ok || path != "u1/a b.png" {
		t.Fatalf("PathFromPublicURL() = %q, %v", path, ok)
	}
	if _, ok := bucket.PathFromPublicURL("https://elsewhere.example/x.png"); ok {
		t.Fatal("foreign URL should not resolve")
	}

	if _, err := bucket.Remove(context.Background(), []string{"u1/a b.png"}); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if (*reqs)[1].Method != http.MethodDelete || !strings.Contains((*reqs)[1].Body, `"prefixes":["u1/a b.png"]`) {
		t.Fatalf("remove request = %+v", (*reqs)[1])
	}
}

func TestRealtimeEventChange(t *testing.T) {
	var event RealtimeEvent
	raw := `{"event":"postgres_changes","topic":"realtime:public:cafe_submissions","payload":{"data":{"type":"INSERT","record":{"id":"s1","name":"Bean There"}}}}`
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	kind, record, ok := event.Change()
	if !ok || kind != "INSERT" || record["id"] != "s1" {
		t.Fatalf("Change() = %q, %v, %v", kind, record, ok)
	}
	var row struct {
		Name string `json:"name"`
	}
	if err := event.DecodeRecord(&row); err != nil || row.Name != "Bean There" {
		t.Fatalf("DecodeRecord() = %+v, %v", row, err)
	}
}

func TestRealtimeURL(t *testing.T) {
	c, _ := New(Config{URL: "https://proj.supabase.co", AnonKey: "anon+key"})
	rt := c.Realtime("tok")
	if !strings.HasPrefix(rt.url, "wss://proj.supabase.co/realtime/v1/websocket?") {
		t.Fatalf("url = %q", rt.url)
	}
	u, err := url.Parse(rt.url)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if u.Query().Get("apikey") != "anon+key" || u.Query().Get("access_token") != "tok" {
		t.Fatalf("query = %v", u.Query())
	}
}

func TestAuthHealth(t *testing.T) {
	healthy := true
	c, reqs := fakePlatform(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"name":"GoTrue"}`))
	})

	if err := c.Auth().Health(context.Background()); err != nil {
		t.Fatalf("Health() = %v", err)
	}
	if got := (*reqs)[0]; got.Path != "/auth/v1/health" || got.Header.Get("apikey") != "anon-key" {
		t.Fatalf("request = %+v", got)
	}

	healthy = false
	if err := c.Auth().Health(context.Background()); err == nil {
		t.Fatal("Health() should fail on 503")
	}
}

func TestContainsPattern(t *testing.T) {
	if got := ContainsPattern("bean (soho), *"); got != "*bean soho *" {
		t.Fatalf("ContainsPattern() = %q", got)
	}
}
