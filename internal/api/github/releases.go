package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// uploadTemplateSuffix is the RFC 6570 query template of release upload URLs.
const uploadTemplateSuffix = "{?name,label}"

var errUploadTemplate = errors.New("unexpected upload url template")

// Release is the subset of a release the publisher needs.
type Release struct {
	ID        int64   `json:"id"`
	TagName   string  `json:"tag_name"`
	Name      string  `json:"name"`
	UploadURL string  `json:"upload_url"`
	Assets    []Asset `json:"assets"`
}

// Asset is an uploaded release file.
type Asset struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// CreateReleaseRequest is the body of a create-release call.
type CreateReleaseRequest struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// ListReleases returns every release of the repository, following pagination.
func (c *Client) ListReleases(ctx context.Context) ([]Release, error) {
	var (
		releases []Release
		next     = fmt.Sprintf("/repos/%s/releases?per_page=100", c.repository)
	)

	for next != "" {
		var page []Release

		header, err := c.doJSON(ctx, http.MethodGet, next, nil, &page)
		if err != nil {
			return nil, err
		}

		releases = append(releases, page...)
		next = nextPage(header)
	}

	return releases, nil
}

// GetReleaseByTag fetches the release for tag. A missing release matches ErrNotFound.
func (c *Client) GetReleaseByTag(ctx context.Context, tag string) (*Release, error) {
	var release Release

	path := fmt.Sprintf("/repos/%s/releases/tags/%s", c.repository, url.PathEscape(tag))
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &release); err != nil {
		return nil, err
	}

	return &release, nil
}

// CreateRelease creates a release named after its tag.
func (c *Client) CreateRelease(ctx context.Context, tag string) (*Release, error) {
	var release Release

	path := fmt.Sprintf("/repos/%s/releases", c.repository)
	if _, err := c.doJSON(ctx, http.MethodPost, path, CreateReleaseRequest{TagName: tag, Name: tag}, &release); err != nil {
		return nil, err
	}

	return &release, nil
}

// UploadReleaseAsset uploads body as name through the release's templated upload URL.
func (c *Client) UploadReleaseAsset(
	ctx context.Context,
	uploadURLTemplate, name, contentType string,
	body io.Reader,
	size int64,
) (*Asset, error) {
	target, err := ExpandUploadURL(uploadURLTemplate, name)
	if err != nil {
		return nil, err
	}

	request, err := c.newRequest(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}

	request.Header.Set("Content-Type", contentType)
	request.ContentLength = size

	var asset Asset
	if _, err := c.do(request, &asset); err != nil {
		return nil, err
	}

	return &asset, nil
}

// ExpandUploadURL substitutes name into an upload URL template ending in {?name,label}.
func ExpandUploadURL(template, name string) (string, error) {
	base, ok := strings.CutSuffix(template, uploadTemplateSuffix)
	if !ok {
		return "", fmt.Errorf("%q: %w", template, errUploadTemplate)
	}

	return base + "?" + url.Values{"name": {name}}.Encode(), nil
}
