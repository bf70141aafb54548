package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

// MaxUploadSize bounds a single uploaded file.
const MaxUploadSize = 50 << 20

type uploadForm struct {
	WorkspaceID    string `form:"workspace_id" validate:"required"`
	CollectionID   string `form:"collection_id" validate:"required"`
	CollectionName string `form:"collection_name"`
	Metadata       string `form:"metadata"`
}

type upload struct {
	uploadForm
	Filename string
	Content  []byte
	Meta     map[string]any
}

// readUpload binds the multipart form shared by the upload and job
// endpoints. The returned error message is safe to show to clients.
func readUpload(c echo.Context) (*upload, error) {
	data := new(uploadForm)
	if err := c.Bind(data); err != nil {
		return nil, errors.New("invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return nil, errors.New("workspace_id and collection_id are required")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, errors.New("file is required")
	}
	if fh.Size > MaxUploadSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxUploadSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("could not read file")
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		return nil, errors.New("could not read file")
	}
	if len(content) > MaxUploadSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxUploadSize)
	}

	meta := map[string]any{}
	if strings.TrimSpace(data.Metadata) != "" {
		if err := json.Unmarshal([]byte(data.Metadata), &meta); err != nil {
			return nil, errors.New("metadata must be a JSON object")
		}
		if meta == nil {
			meta = map[string]any{}
		}
	}

	name := filepath.Base(fh.Filename)
	meta["filename"] = name

	return &upload{
		uploadForm: *data,
		Filename:   name,
		Content:    content,
		Meta:       meta,
	}, nil
}
