package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/aiwf/engine/common/config"
)

// URLFetcher is the contract the ingest.url handler expects: fetch a page
// and return its textual content.
type URLFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// HTTPFetcher implements URLFetcher with resty, stripping HTML markup from
// text/html responses.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a URL fetcher.
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	client := resty.New().
		SetTimeout(cfg.Providers.RequestTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &HTTPFetcher{client: client}
}

// FetchText fetches the URL and returns extracted text. Non-2xx responses
// are errors.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode())
	}

	body := resp.String()
	if strings.Contains(resp.Header().Get("Content-Type"), "text/html") {
		return ExtractText(body), nil
	}
	return body, nil
}

// ExtractText strips tags from an HTML document and collapses whitespace.
// Script and style contents are discarded.
func ExtractText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}
