package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
)

// ErrMalformedLink is returned for anchors without a usable href or integrity fragment.
var ErrMalformedLink = errors.New("malformed link")

// Link is one downloadable artifact advertised by the index.
type Link struct {
	// URL is the absolute location of the artifact.
	URL string
	// HashAlgorithm is the hashlib name from the fragment, e.g. sha256.
	HashAlgorithm string
	// HashValue is the expected hex digest.
	HashValue string
}

// ParseLink resolves href against base and extracts its single hash fragment.
func ParseLink(base, href string) (Link, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return Link{}, fmt.Errorf("base %q: %w", base, errors.Join(ErrMalformedLink, err))
	}

	reference, err := url.Parse(href)
	if err != nil {
		return Link{}, fmt.Errorf("href %q: %w", href, errors.Join(ErrMalformedLink, err))
	}

	algorithm, value, err := parseFragment(reference.Fragment)
	if err != nil {
		return Link{}, fmt.Errorf("href %q: %w", href, err)
	}

	reference.Fragment, reference.RawFragment = "", ""
	target := baseURL.ResolveReference(reference)

	return Link{
		URL:           target.String(),
		HashAlgorithm: algorithm,
		HashValue:     value,
	}, nil
}

// Filename returns the last path segment of the link target.
func (l Link) Filename() string {
	parsed, err := url.Parse(l.URL)
	if err != nil {
		return path.Base(l.URL)
	}

	return path.Base(parsed.Path)
}

// Identity parses the artifact identity from the link's file name.
func (l Link) Identity() (pybi.Identity, error) {
	return pybi.Parse(l.Filename())
}

// parseFragment decodes a query-shaped fragment that must hold exactly one non-empty pair.
func parseFragment(fragment string) (string, string, error) {
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", "", errors.Join(ErrMalformedLink, err)
	}

	var (
		count            int
		algorithm, value string
	)

	for key, items := range values {
		for _, item := range items {
			if item == "" {
				continue
			}

			count++
			algorithm, value = key, item
		}
	}

	if count != 1 || algorithm == "" {
		return "", "", fmt.Errorf("expected exactly one hash in fragment %q, found %d: %w", fragment, count, ErrMalformedLink)
	}

	return algorithm, value, nil
}
