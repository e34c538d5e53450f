// Package client provides a Supabase client for brewmap.
// It covers the PostgREST table API, GoTrue auth, Storage buckets and
// Realtime channels, which together are the whole persistence surface of
// the application.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	maxResponseBytes = 8 << 20 // 8 MiB
	defaultTimeout   = 30 * time.Second
)

// Client is a Supabase REST API client.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
	resilient  *ResilientClient
}

// Config holds client configuration.
type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string // optional; required for service-role calls
	HTTPClient *http.Client
	// Resilience, when set, wraps the transport with retries for
	// idempotent requests and a circuit breaker.
	Resilience *ResilienceConfig
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("AnonKey is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	var resilient *ResilientClient
	if cfg.Resilience != nil {
		base := httpClient
		resilient = NewResilientClient(ResilientClientConfig{
			BaseClient:           base,
			RetryConfig:          cfg.Resilience.Retry,
			CircuitBreakerConfig: cfg.Resilience.CircuitBreaker,
		})
		httpClient = &http.Client{
			Timeout:   base.Timeout,
			Transport: &resilientTransport{client: resilient},
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
		resilient:  resilient,
	}, nil
}

// TransportStats reports the retry and circuit breaker counters. It
// returns false when the client was built without resilience.
func (c *Client) TransportStats() (TransportStats, bool) {
	if c.resilient == nil {
		return TransportStats{}, false
	}
	return c.resilient.Stats(), true
}

// BaseURL returns the project URL without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// HasServiceKey reports whether service-role calls are possible.
func (c *Client) HasServiceKey() bool { return c.serviceKey != "" }

// =============================================================================
// Request identity
// =============================================================================

type accessTokenKey struct{}
type serviceRoleKey struct{}

// WithAccessToken makes requests issued with ctx run as the end user that
// owns token, so row-level security policies apply to them.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the user token carried by ctx.
func AccessToken(ctx context.Context) string {
	v, _ := ctx.Value(accessTokenKey{}).(string)
	return v
}

// WithServiceRole makes requests issued with ctx use the service key,
// bypassing row-level security. Only admin and maintenance paths use it.
func WithServiceRole(ctx context.Context) context.Context {
	return context.WithValue(ctx, serviceRoleKey{}, true)
}

func isServiceRole(ctx context.Context) bool {
	v, _ := ctx.Value(serviceRoleKey{}).(bool)
	return v
}

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
	}
}

type filter struct {
	column string
	expr   string
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	filters []filter
	orders  []string
	limit   int
	offset  int
	single  bool
	count   string // exact, planned, estimated
}

// Select specifies columns to select, including embedded resources such
// as "*,profiles(username)".
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

func (q *QueryBuilder) addFilter(column, op string, value any) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, expr: op + "." + formatValue(value)})
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder { return q.addFilter(column, "eq", value) }

// Neq adds a not-equal filter.
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder {
	return q.addFilter(column, "neq", value)
}

// Gt adds a greater-than filter.
func (q *QueryBuilder) Gt(column string, value any) *QueryBuilder { return q.addFilter(column, "gt", value) }

// Gte adds a greater-than-or-equal filter.
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	return q.addFilter(column, "gte", value)
}

// Lt adds a less-than filter.
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder { return q.addFilter(column, "lt", value) }

// Lte adds a less-than-or-equal filter.
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder {
	return q.addFilter(column, "lte", value)
}

// Like adds a LIKE filter. Use * as the wildcard.
func (q *QueryBuilder) Like(column string, pattern string) *QueryBuilder {
	return q.addFilter(column, "like", pattern)
}

// ILike adds a case-insensitive LIKE filter. Use * as the wildcard.
func (q *QueryBuilder) ILike(column string, pattern string) *QueryBuilder {
	return q.addFilter(column, "ilike", pattern)
}

// ContainsPattern builds a Like/ILike pattern matching values containing
// s. Characters that would break the filter grammar are dropped.
func ContainsPattern(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '*', '%', ',', '(', ')', '"', '\\':
			return -1
		}
		return r
	}, s)
	return "*" + s + "*"
}

// In adds an IN filter. Values are double quoted so ids containing
// reserved characters survive.
func (q *QueryBuilder) In(column string, values []string) *QueryBuilder {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	q.filters = append(q.filters, filter{column: column, expr: "in.(" + strings.Join(quoted, ",") + ")"})
	return q
}

// Is adds an IS filter (for null, true, false).
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder { return q.addFilter(column, "is", value) }

// Or adds a disjunction such as "name.ilike.*x*,city.ilike.*x*".
func (q *QueryBuilder) Or(expr string) *QueryBuilder {
	q.filters = append(q.filters, filter{column: "or", expr: "(" + expr + ")"})
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the OFFSET.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Single expects exactly one row; PostgREST answers 406 otherwise.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count includes a row count in the Content-Range header.
func (q *QueryBuilder) Count(countType string) *QueryBuilder {
	q.count = countType
	return q
}

func (q *QueryBuilder) endpoint(params url.Values) string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, url.PathEscape(q.table))
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

func (q *QueryBuilder) filterParams() url.Values {
	params := url.Values{}
	for _, f := range q.filters {
		params.Add(f.column, f.expr)
	}
	return params
}

// Query returns the encoded query string for the current builder state.
func (q *QueryBuilder) Query() string {
	return q.selectParams().Encode()
}

func (q *QueryBuilder) selectParams() url.Values {
	params := q.filterParams()
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		params.Set("offset", strconv.Itoa(q.offset))
	}
	return params
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.endpoint(q.selectParams()), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(ctx, req)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if q.count != "" {
		req.Header.Set("Prefer", "count="+q.count)
	}

	return q.client.do(req)
}

// ExecuteInto executes a SELECT query and decodes the rows into dst.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, dst any) error {
	resp, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	return resp.JSON(dst)
}

// ExecuteCount returns the exact number of rows matching the filters
// without transferring them.
func (q *QueryBuilder) ExecuteCount(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, q.endpoint(q.filterParams()), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(ctx, req)
	req.Header.Set("Prefer", "count=exact")

	resp, err := q.client.do(req)
	if err != nil {
		return 0, err
	}
	total, ok := resp.Total()
	if !ok {
		return 0, fmt.Errorf("missing count in Content-Range %q", resp.Headers.Get("Content-Range"))
	}
	return total, nil
}

// ExecuteInsert executes an INSERT operation and returns the stored rows.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, q.endpoint(nil), data, "return=representation")
}

// ExecuteUpsert inserts data, merging rows that collide on onConflict.
func (q *QueryBuilder) ExecuteUpsert(ctx context.Context, data any, onConflict string) (*Response, error) {
	params := url.Values{}
	if onConflict != "" {
		params.Set("on_conflict", onConflict)
	}
	return q.write(ctx, http.MethodPost, q.endpoint(params), data, "resolution=merge-duplicates,return=representation")
}

// ExecuteUpdate executes an UPDATE over the rows matched by the filters.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	if len(q.filters) == 0 {
		return nil, fmt.Errorf("update on %s requires at least one filter", q.table)
	}
	return q.write(ctx, http.MethodPatch, q.endpoint(q.filterParams()), data, "return=representation")
}

// ExecuteDelete executes a DELETE over the rows matched by the filters.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	if len(q.filters) == 0 {
		return nil, fmt.Errorf("delete on %s requires at least one filter", q.table)
	}
	return q.write(ctx, http.MethodDelete, q.endpoint(q.filterParams()), nil, "return=representation")
}

func (q *QueryBuilder) write(ctx context.Context, method, reqURL string, data any, prefer string) (*Response, error) {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(ctx, req)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", prefer)

	return q.client.do(req)
}

// =============================================================================
// RPC (Stored Procedures)
// =============================================================================

// RPC calls a stored procedure.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, url.PathEscape(fn))

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setHeaders(ctx, req)
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a generic API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Total parses the total row count from a Content-Range header such as
// "0-24/3573" or "*/0".
func (r *Response) Total() (int, bool) {
	cr := r.Headers.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 || idx == len(cr)-1 {
		return 0, false
	}
	total, err := strconv.Atoi(cr[idx+1:])
	if err != nil {
		return 0, false
	}
	return total, true
}

// Error returns an error if the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode < 400 {
		return nil
	}
	return newAPIError(r.StatusCode, r.Body)
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(ctx context.Context, req *http.Request) {
	apiKey, bearer := c.anonKey, c.anonKey
	switch {
	case isServiceRole(ctx) && c.serviceKey != "":
		apiKey, bearer = c.serviceKey, c.serviceKey
	case AccessToken(ctx) != "":
		bearer = AccessToken(ctx)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if id := GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}
	if err := out.Error(); err != nil {
		return out, err
	}
	return out, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}
