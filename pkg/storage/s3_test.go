package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/knowthefacts/quality-export/pkg/flatten"
)

// fakeS3 captures PutObject calls.
type fakeS3 struct {
	err     error
	bucket  string
	key     string
	body    []byte
	content string
	calls   int
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = *params.Bucket
	f.key = *params.Key
	f.body, _ = io.ReadAll(params.Body)
	f.content = *params.ContentType
	return &s3.PutObjectOutput{}, nil
}

func TestS3_Save(t *testing.T) {
	fake := &fakeS3{}
	saver := NewS3(fake, "quality-exports", "evaluations")

	location, err := saver.Save(context.Background(),
		[]flatten.Record{{"evaluationid": "E1"}}, "E1_C1.jsonl")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if location != "s3://quality-exports/evaluations/E1_C1.jsonl" {
		t.Errorf("location = %q", location)
	}
	if fake.bucket != "quality-exports" {
		t.Errorf("bucket = %q", fake.bucket)
	}
	if fake.key != "evaluations/E1_C1.jsonl" {
		t.Errorf("key = %q", fake.key)
	}
	if string(fake.body) != `{"evaluationid":"E1"}`+"\n" {
		t.Errorf("body = %q", fake.body)
	}
	if fake.content != "application/x-ndjson" {
		t.Errorf("content type = %q", fake.content)
	}
}

func TestS3_EmptyPrefix(t *testing.T) {
	fake := &fakeS3{}
	saver := NewS3(fake, "quality-exports", "")

	location, err := saver.Save(context.Background(),
		[]flatten.Record{{"id": "F1"}}, "forms.jsonl")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if fake.key != "forms.jsonl" {
		t.Errorf("key = %q, want no leading prefix separator", fake.key)
	}
	if location != "s3://quality-exports/forms.jsonl" {
		t.Errorf("location = %q", location)
	}
}

func TestS3_PutFailure(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	saver := NewS3(fake, "quality-exports", "out")

	_, err := saver.Save(context.Background(), []flatten.Record{{"id": "F1"}}, "forms.jsonl")

	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Expected *WriteError, got %T: %v", err, err)
	}
	if writeErr.Name != "forms.jsonl" {
		t.Errorf("Name = %q, want forms.jsonl", writeErr.Name)
	}
}
