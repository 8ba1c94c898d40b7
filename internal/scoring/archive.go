package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by ReportArchive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReportArchive writes run summaries to S3. An empty bucket disables it.
type ReportArchive struct {
	client S3API
	bucket string
}

func NewReportArchive(client S3API, bucket string) *ReportArchive {
	return &ReportArchive{client: client, bucket: bucket}
}

func (a *ReportArchive) Enabled() bool {
	return a != nil && a.bucket != "" && a.client != nil
}

// Archive stores the summary under scoring/runs/YYYY/MM/DD/<run id>.json and
// returns the key.
func (a *ReportArchive) Archive(ctx context.Context, sum Summary) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return "", fmt.Errorf("scoring: marshal summary: %w", err)
	}
	at := sum.StartedAt.UTC()
	key := fmt.Sprintf("scoring/runs/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), sum.RunID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("scoring: s3 put %s: %w", key, err)
	}
	return key, nil
}
