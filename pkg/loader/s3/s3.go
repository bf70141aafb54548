package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/kgrag/backend/pkg/loader"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the part of *s3.Client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3GraphFileLoader is a source loader that reads raw file bytes from an
// S3 bucket. FilePath is the object key.
type S3GraphFileLoader struct {
	bucket string
	client ObjectGetter
	cache  loader.Cache
}

// NewS3GraphFileLoader creates a loader on an existing client, e.g. one
// built by storage.NewS3Client.
//
// Example:
//
//	src := s3.NewS3GraphFileLoader("uploads", client)
//	file := loader.GraphFile{ID: "job1", FilePath: "ws1/col1/job1.pdf", Loader: pdf.NewPDFGraphLoader(src)}
//	text, err := file.GetText(ctx)
func NewS3GraphFileLoader(bucket string, client ObjectGetter) *S3GraphFileLoader {
	return &S3GraphFileLoader{bucket: bucket, client: client}
}

// GetFileText downloads the object. Results are cached per file.
func (l *S3GraphFileLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Do(loader.CacheKey(file), func() ([]byte, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(file.FilePath),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get %s from S3: %w", file.FilePath, err)
		}
		defer out.Body.Close()

		content, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file.FilePath, err)
		}
		return content, nil
	})
}
