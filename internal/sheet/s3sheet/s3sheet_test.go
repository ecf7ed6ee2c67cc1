package s3sheet

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/basket/pkg/types"
)

// fakeBucket is an in-memory S3 that understands path-style GET and PUT.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	puts    int
	fail    bool
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fail {
		return nil, errors.New("connection refused")
	}
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodGet:
		b.gets++
		body, ok := b.objects[key]
		if !ok {
			return respond(http.StatusNotFound, []byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`), "application/xml"), nil
		}
		return respond(http.StatusOK, body, "application/octet-stream"), nil
	case http.MethodPut:
		b.puts++
		body, _ := io.ReadAll(req.Body)
		b.objects[key] = body
		resp := respond(http.StatusOK, nil, "")
		resp.Header.Set("ETag", `"etag"`)
		return resp, nil
	}
	return respond(http.StatusNotImplemented, nil, ""), nil
}

func respond(status int, body []byte, contentType string) *http.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        h,
	}
}

func newFakeSheet(t *testing.T) (*Sheet, *fakeBucket) {
	t.Helper()
	fb := &fakeBucket{objects: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
		config.WithRetryMaxAttempts(1),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fb}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	s, err := NewWithClient(client, "household", "", "items")
	require.NoError(t, err)
	return s, fb
}

func TestNewWithClientValidation(t *testing.T) {
	_, err := NewWithClient(nil, "", "k", "items")
	assert.ErrorIs(t, err, types.ErrBucketEmpty)
	_, err = NewWithClient(nil, "b", "k", "")
	assert.ErrorIs(t, err, types.ErrSheetNameEmpty)
}

func TestMissingObjectIsEmptySheet(t *testing.T) {
	s, _ := newFakeSheet(t)
	rows, err := s.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWritesRoundTripThroughBucket(t *testing.T) {
	ctx := context.Background()
	s, fb := newFakeSheet(t)

	require.NoError(t, s.Replace(ctx, [][]string{types.Header, {"a", "Milk", "False", "Dairy", "Aldi"}}))
	require.NoError(t, s.Append(ctx, []string{"b", "Eggs", "False", "Dairy", "Lidl"}))
	require.NoError(t, s.Update(ctx, 1, []string{"a", "Milk", "True", "Dairy", "Aldi"}))
	require.NoError(t, s.Delete(ctx, 2))

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{types.Header, {"a", "Milk", "True", "Dairy", "Aldi"}}, rows)

	assert.Contains(t, fb.objects, "household/"+DefaultKey)
	assert.Equal(t, 4, fb.puts)
}

func TestUnreachableBucketSurfacesError(t *testing.T) {
	s, fb := newFakeSheet(t)
	fb.fail = true
	_, err := s.Rows(context.Background())
	assert.Error(t, err)
	assert.Error(t, s.Append(context.Background(), types.Header))
}
