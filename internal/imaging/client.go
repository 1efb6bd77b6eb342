// Package imaging is a client for the static-analysis REST service that owns
// code objects and their call graph. All endpoints authenticate with a static
// api-key query parameter; file-content endpoints return raw text, everything
// else returns JSON.
package imaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// ErrStatus indicates the imaging service answered with a non-2xx status.
var ErrStatus = errors.New("imaging request failed")

// Client calls the imaging REST API. Zero value is not valid; use NewClient.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds an imaging client. baseURL is the API root including the
// /rest segment (e.g. https://imaging.example.invalid/rest). If httpClient is
// nil, a default client with a 60s timeout is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("missing base URL")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing api key")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}, nil
}

// Scope identifies the tenant/application pair every object lookup runs
// under.
type Scope struct {
	Tenant      string
	Application string
}

func (s Scope) valid() bool {
	return strings.TrimSpace(s.Tenant) != "" && strings.TrimSpace(s.Application) != ""
}

func (c *Client) endpoint(scope Scope, parts ...string) string {
	segs := []string{c.baseURL, "tenants", url.PathEscape(scope.Tenant), "applications", url.PathEscape(scope.Application)}
	segs = append(segs, parts...)
	return strings.Join(segs, "/")
}

func (c *Client) get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("imaging request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imaging get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("imaging get %s: %w: HTTP %d", rawURL, ErrStatus, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imaging read %s: %w", rawURL, err)
	}
	return b, nil
}

// GetObject fetches an object's metadata including its source locations.
func (c *Client) GetObject(ctx context.Context, scope Scope, objectID string) (*Object, error) {
	if !scope.valid() || strings.TrimSpace(objectID) == "" {
		return nil, errors.New("invalid object lookup")
	}
	u := c.endpoint(scope, "objects", url.PathEscape(objectID))
	q := url.Values{}
	q.Set("select", "source-locations")
	b, err := c.get(ctx, u, q)
	if err != nil {
		return nil, err
	}
	var obj Object
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("imaging parse object %s: %w", objectID, err)
	}
	obj.ID = objectID
	return &obj, nil
}

// GetSourceRange fetches the raw text of an inclusive line range of a file.
func (c *Client) GetSourceRange(ctx context.Context, scope Scope, fileID, startLine, endLine int) (string, error) {
	if !scope.valid() || fileID <= 0 {
		return "", errors.New("invalid file lookup")
	}
	u := c.endpoint(scope, "files", strconv.Itoa(fileID))
	q := url.Values{}
	q.Set("start-line", strconv.Itoa(startLine))
	q.Set("end-line", strconv.Itoa(endLine))
	b, err := c.get(ctx, u, q)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetFileContent fetches the raw text of a whole file.
func (c *Client) GetFileContent(ctx context.Context, scope Scope, fileID int) (string, error) {
	if !scope.valid() || fileID <= 0 {
		return "", errors.New("invalid file lookup")
	}
	b, err := c.get(ctx, c.endpoint(scope, "files", strconv.Itoa(fileID)), nil)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetCallees fetches the object's outgoing call-graph edges. Exception edges
// (raise/throw/catch) carry the exception name.
func (c *Client) GetCallees(ctx context.Context, scope Scope, objectID string) ([]CallLink, error) {
	return c.getLinks(ctx, scope, objectID, "callees", nil)
}

// GetCallers fetches the object's incoming call-graph edges with their
// call-site bookmarks.
func (c *Client) GetCallers(ctx context.Context, scope Scope, objectID string) ([]CallLink, error) {
	q := url.Values{}
	q.Set("select", "bookmarks")
	return c.getLinks(ctx, scope, objectID, "callers", q)
}

func (c *Client) getLinks(ctx context.Context, scope Scope, objectID, kind string, q url.Values) ([]CallLink, error) {
	if !scope.valid() || strings.TrimSpace(objectID) == "" {
		return nil, errors.New("invalid object lookup")
	}
	u := c.endpoint(scope, "objects", url.PathEscape(objectID), kind)
	b, err := c.get(ctx, u, q)
	if err != nil {
		return nil, err
	}
	var links []CallLink
	if err := json.Unmarshal(b, &links); err != nil {
		return nil, fmt.Errorf("imaging parse %s of %s: %w", kind, objectID, err)
	}
	return links, nil
}
