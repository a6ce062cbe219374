package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the subset of the S3 client used to load and store indexes.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Location is where a persisted index lives: a local path or an S3 object
// written as s3://bucket/key.
type Location struct {
	Path   string
	Bucket string
	Key    string
}

// IsS3 reports whether the location is an S3 object.
func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsS3() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// ParseLocation parses a local path or an s3://bucket/key URI.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("index location cannot be empty")
	}

	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return Location{Path: raw}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid S3 location %q: want s3://bucket/key", raw)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// LoadIndex reads and validates the index at loc. objects may be nil for
// local paths.
func LoadIndex(ctx context.Context, loc Location, objects ObjectAPI) (*Index, error) {
	if !loc.IsS3() {
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		defer f.Close()
		return DecodeIndex(f)
	}

	if objects == nil {
		return nil, fmt.Errorf("S3 client required to load %s", loc)
	}
	out, err := objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	defer out.Body.Close()
	return DecodeIndex(out.Body)
}

// SaveIndex writes idx to loc. Local parent directories are created as
// needed.
func SaveIndex(ctx context.Context, idx *Index, loc Location, objects ObjectAPI) error {
	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		return err
	}

	if !loc.IsS3() {
		if err := os.MkdirAll(filepath.Dir(loc.Path), 0o755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
		if err := os.WriteFile(loc.Path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
		return nil
	}

	if objects == nil {
		return fmt.Errorf("S3 client required to save %s", loc)
	}
	_, err := objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", loc, err)
	}
	return nil
}
