package loader

import (
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes loader results per CacheKey. Concurrent loads of the same
// key share one call.
type Cache struct {
	mu    sync.RWMutex
	data  map[string][]byte
	group singleflight.Group
}

func (c *Cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.data[key]
	return b, ok
}

// Do returns the cached value for key or stores the result of fn. Errors
// are not cached.
func (c *Cache) Do(key string, fn func() ([]byte, error)) ([]byte, error) {
	if b, ok := c.get(key); ok {
		return b, nil
	}
	result, err, _ := c.group.Do(key, func() (any, error) {
		if b, ok := c.get(key); ok {
			return b, nil
		}
		b, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.data == nil {
			c.data = make(map[string][]byte)
		}
		c.data[key] = b
		c.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// CleanText strips a UTF-8 byte order mark, replaces invalid UTF-8,
// normalizes line endings and trims trailing spaces on every line.
func CleanText(b []byte) string {
	s := strings.TrimPrefix(string(b), "\uFEFF")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
