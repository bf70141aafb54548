// Package auto picks the text loader for a file by its extension.
package auto

import (
	"github.com/kgrag/backend/pkg/loader"
	"github.com/kgrag/backend/pkg/loader/csv"
	"github.com/kgrag/backend/pkg/loader/pdf"
	"github.com/kgrag/backend/pkg/loader/text"
	"github.com/kgrag/backend/pkg/loader/web"
)

// NewGraphFile returns a GraphFile for name whose loader extracts text from
// the raw bytes served by source. It fails with loader.ErrUnsupportedFileType
// for unknown extensions.
func NewGraphFile(id, name string, source loader.GraphFileLoader) (loader.GraphFile, error) {
	fileType, err := loader.DetectFileType(name)
	if err != nil {
		return loader.GraphFile{}, err
	}

	var l loader.GraphFileLoader
	switch fileType {
	case loader.GraphFileTypeCSV:
		l = csv.NewCSVGraphLoader(source)
	case loader.GraphFileTypeHTML:
		l = web.NewWebGraphLoaderWithLoader(source)
	case loader.GraphFileTypePDF:
		l = pdf.NewPDFGraphLoader(source)
	default:
		l = text.NewTextGraphLoader(source)
	}

	return loader.GraphFile{
		ID:       id,
		FilePath: name,
		FileType: fileType,
		Loader:   l,
	}, nil
}
