package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kgrag/backend/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
)

// WebGraphLoader extracts the readable article text from HTML. Content
// comes from the source loader, or from FilePath as a URL when there is none.
type WebGraphLoader struct {
	source loader.GraphFileLoader
	client *http.Client
	cache  loader.Cache
}

// NewWebGraphLoader creates a loader that fetches FilePath over HTTP.
func NewWebGraphLoader(client *http.Client) *WebGraphLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebGraphLoader{client: client}
}

// NewWebGraphLoaderWithLoader creates a loader that reads HTML from source.
func NewWebGraphLoaderWithLoader(source loader.GraphFileLoader) *WebGraphLoader {
	return &WebGraphLoader{source: source}
}

func (l *WebGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Do(loader.CacheKey(file), func() ([]byte, error) {
		if l.source != nil {
			content, err := l.source.GetFileText(ctx, file)
			if err != nil {
				return nil, err
			}
			return renderHTML(bytes.NewReader(content), &url.URL{Scheme: "file", Path: "/" + file.FilePath})
		}
		return l.fetch(ctx, file.FilePath)
	})
}

func (l *WebGraphLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return renderHTML(resp.Body, pageURL)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return []byte(loader.CleanText(content)), nil
}

func renderHTML(r io.Reader, pageURL *url.URL) ([]byte, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return nil, fmt.Errorf("failed to render article text: %w", err)
	}
	return []byte(loader.CleanText([]byte(builder.String()))), nil
}
