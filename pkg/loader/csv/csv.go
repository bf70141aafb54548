package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kgrag/backend/pkg/loader"
)

// CSVGraphLoader renders CSV rows as text for extraction.
type CSVGraphLoader struct {
	loader loader.GraphFileLoader
	cache  loader.Cache
}

// NewCSVGraphLoader creates a new CSVGraphLoader with the given base loader.
func NewCSVGraphLoader(source loader.GraphFileLoader) *CSVGraphLoader {
	return &CSVGraphLoader{loader: source}
}

// GetFileText retrieves and parses the CSV file content.
func (l *CSVGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Do(loader.CacheKey(file), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, file)
		if err != nil {
			return nil, err
		}
		return ParseCSV(content)
	})
}

// ParseCSV uses the first non-empty record as header and renders every
// following record as one line of "column: value" pairs. Rows are separated
// by blank lines so the chunker keeps them together.
func ParseCSV(content []byte) ([]byte, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header []string
	var rows []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if isEmpty(record) {
			continue
		}
		if header == nil {
			header = trimAll(record)
			continue
		}
		rows = append(rows, renderRow(header, record))
	}

	if header == nil {
		return nil, fmt.Errorf("CSV file is empty or contains no valid data")
	}
	if len(rows) == 0 {
		return []byte(strings.Join(header, ", ")), nil
	}
	return []byte(strings.Join(rows, "\n\n")), nil
}

func renderRow(header, record []string) string {
	pairs := make([]string, 0, len(record))
	for i, field := range record {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name := fmt.Sprintf("column %d", i+1)
		if i < len(header) && header[i] != "" {
			name = header[i]
		}
		pairs = append(pairs, name+": "+field)
	}
	return strings.Join(pairs, "; ")
}

func isEmpty(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func trimAll(record []string) []string {
	out := make([]string, len(record))
	for i, f := range record {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
