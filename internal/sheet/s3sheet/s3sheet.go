// Package s3sheet keeps the sheet as an xlsx workbook object in an
// S3-compatible bucket (AWS S3 or MinIO). Each write is one GET and one PUT
// of the workbook; there is no locking, so the last PUT wins.
package s3sheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/basket/internal/sheet/xlsx"
	"github.com/mesh-intelligence/basket/pkg/types"
)

// DefaultKey is the object key used when the config leaves it empty.
const DefaultKey = "basket.xlsx"

// Sheet is a worksheet inside a workbook object.
type Sheet struct {
	mu     sync.Mutex
	client *s3.Client
	bucket string
	key    string
	sheet  string
}

// New builds an S3 client from cfg and the default AWS credential chain.
// Static keys in cfg take precedence over the chain.
func New(ctx context.Context, cfg types.S3Config, sheet string) (*Sheet, error) {
	if cfg.Bucket == "" {
		return nil, types.ErrBucketEmpty
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Checksums only where an operation requires one; bodies stay plain.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return NewWithClient(client, cfg.Bucket, cfg.Key, sheet)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, bucket, key, sheet string) (*Sheet, error) {
	if bucket == "" {
		return nil, types.ErrBucketEmpty
	}
	if sheet == "" {
		return nil, types.ErrSheetNameEmpty
	}
	if key == "" {
		key = DefaultKey
	}
	return &Sheet{client: client, bucket: bucket, key: key, sheet: sheet}, nil
}

func (s *Sheet) Rows(ctx context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}
	defer f.Close()
	return xlsx.ReadRows(f, s.sheet)
}

func (s *Sheet) Replace(ctx context.Context, rows [][]string) error {
	return s.edit(ctx, func(f *excelize.File) error { return xlsx.ReplaceRows(f, s.sheet, rows) })
}

func (s *Sheet) Append(ctx context.Context, row []string) error {
	return s.edit(ctx, func(f *excelize.File) error { return xlsx.AppendRow(f, s.sheet, row) })
}

func (s *Sheet) Update(ctx context.Context, pos int, row []string) error {
	return s.edit(ctx, func(f *excelize.File) error { return xlsx.UpdateRow(f, s.sheet, pos, row) })
}

func (s *Sheet) Delete(ctx context.Context, pos int) error {
	return s.edit(ctx, func(f *excelize.File) error { return xlsx.DeleteRow(f, s.sheet, pos) })
}

func (s *Sheet) Close() error { return nil }

// edit downloads the workbook (or starts a new one), applies fn, and uploads it.
func (s *Sheet) edit(ctx context.Context, fn func(*excelize.File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	if f == nil {
		f = excelize.NewFile()
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	buf, err := xlsx.Encode(f)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String(xlsx.ContentType),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// fetch downloads and parses the workbook. A missing object yields nil, nil.
func (s *Sheet) fetch(ctx context.Context) (*excelize.File, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return xlsx.Open(bytes.NewReader(data))
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
