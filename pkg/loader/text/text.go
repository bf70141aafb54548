package text

import (
	"context"

	"github.com/kgrag/backend/pkg/loader"
)

// TextGraphLoader returns plain text and Markdown as is, after CleanText.
type TextGraphLoader struct {
	loader loader.GraphFileLoader
	cache  loader.Cache
}

// NewTextGraphLoader creates a text loader reading from the given source loader.
func NewTextGraphLoader(source loader.GraphFileLoader) *TextGraphLoader {
	return &TextGraphLoader{loader: source}
}

func (l *TextGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Do(loader.CacheKey(file), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, file)
		if err != nil {
			return nil, err
		}
		return []byte(loader.CleanText(content)), nil
	})
}
