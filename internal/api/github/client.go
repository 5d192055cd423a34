package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/version"
)

const (
	// apiVersion pins the REST API version header.
	apiVersion = "2022-11-28"
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.github.com"
	// maxResponseSize bounds JSON response bodies.
	maxResponseSize int64 = 16 << 20
)

var errInvalidRepository = errors.New("repository must be owner/name")

// Config holds the settings for a Client.
type Config struct {
	// BaseURL is the API root, DefaultBaseURL when empty.
	BaseURL string
	// Repository is "owner/name".
	Repository string
	// Token authenticates every request when set.
	Token string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client talks to the releases API of one repository.
type Client struct {
	baseURL    string
	repository string
	token      string
	httpClient *http.Client
}

// NewClient validates config and returns a Client.
func NewClient(config Config) (*Client, error) {
	owner, name, ok := strings.Cut(config.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%q: %w", config.Repository, errInvalidRepository)
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		repository: config.Repository,
		token:      config.Token,
		httpClient: httpClient,
	}, nil
}

// Repository returns the "owner/name" the client is bound to.
func (c *Client) Repository() string {
	return c.repository
}

// Authenticated reports whether requests carry a token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// newRequest builds an authenticated request to an absolute URL.
func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}

	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	request.Header.Set("User-Agent", version.UserAgent())

	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	return request, nil
}

// do sends request and decodes a 2xx JSON response into out when out is not nil.
func (c *Client) do(request *http.Request, out any) (http.Header, error) {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", request.Method, request.URL.Path, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("github: reading response body: %w", err)
	}

	logger.DebugKV(request.Context(), "GitHub API call",
		"method", request.Method, "path", request.URL.Path, "status", response.StatusCode)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, newAPIError(response.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("github: decoding response: %w", err)
		}
	}

	return response.Header, nil
}

// doJSON sends a JSON-encoded body to an API path.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) (http.Header, error) {
	var body io.Reader = http.NoBody

	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("github: encoding request body: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	request, err := c.newRequest(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}

	if in != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	return c.do(request, out)
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	return c.baseURL + path
}

// nextPage extracts the rel="next" target from a Link header.
func nextPage(header http.Header) string {
	for _, link := range header.Values("Link") {
		for part := range strings.SplitSeq(link, ",") {
			target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
			if !ok {
				continue
			}

			if strings.Contains(params, `rel="next"`) {
				return strings.Trim(strings.TrimSpace(target), "<>")
			}
		}
	}

	return ""
}
