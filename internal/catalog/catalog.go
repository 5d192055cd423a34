package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/version"
)

var (
	errBadHTTPStatus = errors.New("unexpected http status")
	errIndexTooLarge = errors.New("index page exceeds size limit")
)

// maxIndexSize bounds how much of the index page is read.
const maxIndexSize int64 = 32 << 20

// Parse returns the links of every anchor in the markup, in document order.
func Parse(base string, markup io.Reader) ([]Link, error) {
	var (
		tokenizer = html.NewTokenizer(markup)
		links     []Link
	)

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			if err := tokenizer.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize index: %w", err)
			}

			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.DataAtom != atom.A {
				continue
			}

			link, err := parseAnchor(base, token)
			if err != nil {
				return nil, err
			}

			links = append(links, link)
		default:
		}
	}
}

// Fetch downloads the index page at indexURL and parses it.
func Fetch(ctx context.Context, client *http.Client, indexURL string) ([]Link, error) {
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	request.Header.Set("User-Agent", version.UserAgent())

	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", indexURL, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", indexURL, response.Status, errBadHTTPStatus)
	}

	body, err := readBounded(response.Body, maxIndexSize)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", indexURL, err)
	}

	links, err := Parse(indexURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Discovered artifacts", "index_url", indexURL, "count", len(links))

	return links, nil
}

// parseAnchor validates one <a> element and converts it to a Link.
func parseAnchor(base string, token html.Token) (Link, error) {
	var (
		href    string
		hasHref bool
	)

	for _, attribute := range token.Attr {
		if attribute.Namespace == "" && attribute.Key == "href" {
			href, hasHref = attribute.Val, true
			break
		}
	}

	if !hasHref || !strings.Contains(href, "#") {
		return Link{}, fmt.Errorf("unexpected anchor %s: %w", token.String(), ErrMalformedLink)
	}

	return ParseLink(base, href)
}

// readBounded reads r fully, failing instead of truncating when it holds more than limit bytes.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}

	if int64(len(body)) > limit {
		return nil, fmt.Errorf("more than %d bytes: %w", limit, errIndexTooLarge)
	}

	return body, nil
}
