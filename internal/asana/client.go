package asana

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

	"github.com/roach88/asanatap/internal/source"
)

// DefaultBaseURL is the Asana REST API root.
const DefaultBaseURL = "https://app.asana.com/api/1.0"

// MaxPageSize is the largest page Asana accepts.
const MaxPageSize = 100

// TokenProvider yields the current access token. It is read on every
// request so a refresh takes effect immediately.
type TokenProvider interface {
	AccessToken() string
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper

	// UserAgent is sent on every request when set.
	UserAgent string
}

// Client is an Asana API client.
type Client struct {
	baseURL   string
	pageSize  int
	userAgent string
	http      *http.Client
	tokens    TokenProvider
}

var _ source.Source = (*Client)(nil)

// New creates a client reading its bearer token from tokens.
func New(cfg Config, tokens TokenProvider) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   base,
		pageSize:  pageSize,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout, Transport: cfg.Transport},
		tokens:    tokens,
	}
}

// envelope is the common response wrapper.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	NextPage *struct {
		Offset string `json:"offset"`
	} `json:"next_page"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// List fetches one page of a collection.
func (c *Client) List(ctx context.Context, req source.ListRequest) (source.Page, error) {
	query := url.Values{}
	for k, v := range req.Params {
		query.Set(k, v)
	}
	if len(req.Fields) > 0 {
		query.Set("opt_fields", strings.Join(req.Fields, ","))
	}
	limit := req.Limit
	if limit <= 0 || limit > c.pageSize {
		limit = c.pageSize
	}
	query.Set("limit", strconv.Itoa(limit))
	if req.Offset != "" {
		query.Set("offset", req.Offset)
	}

	op := "GET " + req.Path
	env, err := c.get(ctx, op, req.Path, query)
	if err != nil {
		return source.Page{}, err
	}

	var records []source.Record
	if err := decode(env.Data, &records); err != nil {
		return source.Page{}, source.NewError(source.KindTransient, op, http.StatusOK, fmt.Errorf("decode data: %w", err))
	}

	page := source.Page{Records: records}
	if env.NextPage != nil {
		page.NextOffset = env.NextPage.Offset
	}
	return page, nil
}

// Get fetches a single record, e.g. Get(ctx, "tasks", "1200", fields).
func (c *Client) Get(ctx context.Context, resource, id string, fields []string) (source.Record, error) {
	path := resource + "/" + url.PathEscape(id)
	query := url.Values{}
	if len(fields) > 0 {
		query.Set("opt_fields", strings.Join(fields, ","))
	}

	op := "GET " + path
	env, err := c.get(ctx, op, path, query)
	if err != nil {
		return nil, err
	}

	var rec source.Record
	if err := decode(env.Data, &rec); err != nil {
		return nil, source.NewError(source.KindTransient, op, http.StatusOK, fmt.Errorf("decode data: %w", err))
	}
	if rec == nil {
		return nil, source.NewError(source.KindNotFound, op, http.StatusOK, nil)
	}
	return rec, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) (*envelope, error) {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, source.NewError(source.KindFatal, op, 0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token := c.tokens.AccessToken(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		kind := source.KindTransient
		if ctx.Err() != nil {
			kind = source.KindFatal
		}
		return nil, source.NewError(kind, op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.NewError(source.KindTransient, op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	var env envelope
	decodeErr := decode(body, &env)

	if resp.StatusCode >= 300 {
		var cause error
		if decodeErr == nil && len(env.Errors) > 0 {
			cause = fmt.Errorf("%s", env.Errors[0].Message)
		}
		return nil, source.NewError(classifyStatus(resp.StatusCode), op, resp.StatusCode, cause)
	}
	if decodeErr != nil {
		return nil, source.NewError(source.KindTransient, op, resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr))
	}
	return &env, nil
}

// classifyStatus maps an HTTP status to the source taxonomy.
func classifyStatus(status int) source.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return source.KindAuthExpired
	case status == http.StatusNotFound:
		return source.KindNotFound
	case status == http.StatusTooManyRequests, status >= 500:
		return source.KindTransient
	default:
		return source.KindFatal
	}
}

// decode unmarshals JSON keeping numbers as json.Number.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
