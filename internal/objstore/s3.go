package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	c S3Client
}

func New(c S3Client) *Store {
	return &Store{c: c}
}

func (s *Store) GetBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 getobject %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 body %s/%s: %w", bucket, key, err)
	}
	return b, nil
}

// IsNotFound reports whether err is S3's missing-object error.
func IsNotFound(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func (s *Store) GetJSON(ctx context.Context, bucket, key string, v any) error {
	b, err := s.GetBytes(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) PutBytes(ctx context.Context, bucket, key, contentType string, body []byte) error {
	_, err := s.c.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 putobject %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) PutJSON(ctx context.Context, bucket, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.PutBytes(ctx, bucket, key, "application/json", b)
}

// ParseURI accepts s3://bucket/key plus the path-style and virtual-hosted
// https forms Transcribe and other services hand back.
func ParseURI(uri string) (bucket, key string, err error) {
	uri = strings.TrimSpace(uri)
	if strings.HasPrefix(uri, "s3://") {
		rest := strings.TrimPrefix(uri, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return "", "", fmt.Errorf("malformed s3 uri %q", uri)
		}
		return bucket, key, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	path := strings.TrimPrefix(u.Path, "/")
	host := u.Host

	// virtual-hosted: bucket.s3.amazonaws.com or bucket.s3.<region>.amazonaws.com
	if i := strings.Index(host, ".s3."); i > 0 && !strings.HasPrefix(host, "s3.") {
		bucket = host[:i]
		key = path
	} else {
		bucket, key, _ = strings.Cut(path, "/")
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 uri %q", uri)
	}
	return bucket, key, nil
}
