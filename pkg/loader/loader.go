package loader

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

type GraphFileType string

const (
	GraphFileTypeText     GraphFileType = "text"
	GraphFileTypeMarkdown GraphFileType = "markdown"
	GraphFileTypeCSV      GraphFileType = "csv"
	GraphFileTypeHTML     GraphFileType = "html"
	GraphFileTypePDF      GraphFileType = "pdf"
)

// ErrUnsupportedFileType is returned for files whose extension has no loader.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// GraphFile represents a file that can be turned into document text for
// ingestion. The actual content is retrieved via the associated
// GraphFileLoader.
type GraphFile struct {
	ID       string
	FilePath string
	FileType GraphFileType
	Loader   GraphFileLoader
}

// GetText retrieves the text content of the file using its Loader.
//
// Example:
//
//	text, err := file.GetText(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(text))
func (f *GraphFile) GetText(ctx context.Context) ([]byte, error) {
	if f.Loader == nil {
		return nil, fmt.Errorf("file %s has no loader", f.FilePath)
	}
	return f.Loader.GetFileText(ctx, *f)
}

// GraphFileLoader defines the interface for loading the contents of a GraphFile.
// Source loaders (S3, in-memory) return raw bytes; format loaders wrap a
// source loader and return extracted text.
type GraphFileLoader interface {
	GetFileText(ctx context.Context, file GraphFile) ([]byte, error)
}

// BytesLoader serves the same in-memory content for every file. It is the
// source loader for uploads that never touch object storage.
type BytesLoader []byte

func (b BytesLoader) GetFileText(ctx context.Context, file GraphFile) ([]byte, error) {
	return append([]byte(nil), b...), nil
}

var extensions = map[string]GraphFileType{
	".txt":      GraphFileTypeText,
	".text":     GraphFileTypeText,
	".log":      GraphFileTypeText,
	".md":       GraphFileTypeMarkdown,
	".markdown": GraphFileTypeMarkdown,
	".csv":      GraphFileTypeCSV,
	".html":     GraphFileTypeHTML,
	".htm":      GraphFileTypeHTML,
	".pdf":      GraphFileTypePDF,
}

// DetectFileType maps a file name to its type by extension.
func DetectFileType(name string) (GraphFileType, error) {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := extensions[ext]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
}

func CacheKey(file GraphFile) string {
	return file.ID + ":" + file.FilePath
}
