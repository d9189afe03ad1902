package storage

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knowthefacts/quality-export/pkg/flatten"
)

// s3API is the subset of the S3 client used by the saver.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes each batch of records as one NDJSON object. Keys are
// prefix/name; a repeated save of the same name overwrites the object.
type S3 struct {
	api    s3API
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3 creates an object-store saver for the given bucket and key prefix.
func NewS3(api s3API, bucket, prefix string) *S3 {
	return &S3{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		logger: log.With().Str("component", "s3-storage").Logger(),
	}
}

// Save puts one object per call and returns the s3:// location.
func (s *S3) Save(ctx context.Context, records []flatten.Record, name string) (string, error) {
	body, err := encodeRecords(records)
	if err != nil {
		return "", &WriteError{Name: name, Err: err}
	}

	key := path.Join(s.prefix, name)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", &WriteError{Name: name, Err: err}
	}

	location := "s3://" + s.bucket + "/" + key

	s.logger.Debug().
		Str("location", location).
		Int("records", len(records)).
		Msg("Put object")

	return location, nil
}
