// Package archive ships a daily CSV of the ledger to S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"timeclock/internal/attendance"
	"timeclock/internal/report"
)

// Uploader stores an object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}

// RecordLister is the read side of the ledger.
type RecordLister interface {
	ListRecords(ctx context.Context) ([]attendance.TimeRecord, error)
}

// S3 uploads to a single bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds a client from the default AWS credential chain.
func NewS3(ctx context.Context, bucket string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &S3{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (u *S3) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, u.bucket, err)
	}
	return nil
}

// Archiver exports one calendar day of records per run.
type Archiver struct {
	records RecordLister
	up      Uploader
	prefix  string
	loc     *time.Location
}

func New(records RecordLister, up Uploader, prefix string, loc *time.Location) *Archiver {
	return &Archiver{records: records, up: up, prefix: prefix, loc: loc}
}

// Key is the object name for day, e.g. "timeclock/2025/03/14.csv".
func Key(prefix string, day time.Time) string {
	return path.Join(prefix, day.Format("2006/01/02")+".csv")
}

// ArchiveDay uploads the records of day and returns the object key.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (string, error) {
	records, err := a.records.ListRecords(ctx)
	if err != nil {
		return "", err
	}
	d := day.In(a.loc)
	records = report.Filter{From: &d}.Apply(records, a.loc)

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, records, a.loc); err != nil {
		return "", err
	}
	key := Key(a.prefix, d)
	if err := a.up.Upload(ctx, key, &buf, "text/csv; charset=utf-8"); err != nil {
		return "", err
	}
	return key, nil
}

// NextRun is the first time at hour:00 in loc strictly after now.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run archives the previous day every day at hour until ctx is done.
func (a *Archiver) Run(ctx context.Context, hour int) {
	for {
		next := NextRun(time.Now(), hour, a.loc)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		key, err := a.ArchiveDay(ctx, next.AddDate(0, 0, -1))
		if err != nil {
			log.Printf("archive failed: %v", err)
			continue
		}
		log.Printf("archived %s", key)
	}
}
