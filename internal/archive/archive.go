// Package archive is an optional archival sink for raw extraction
// payloads and pipeline run summaries, adapted from
// internal/storage/s3_storage.go's client construction — repurposed
// from presigned client uploads to direct server-side PutObject calls,
// since the pipeline writes its own archives rather than handing a URL
// to a browser.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Sink archives arbitrary JSON-serializable payloads under a
// run-scoped key prefix.
type Sink struct {
	client *s3.Client
	bucket string
}

// Config governs the S3 destination and credentials, mirroring
// s3_storage.go's "use explicit keys, else default credential chain"
// fallback.
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// New builds a Sink. Returns nil when Bucket is empty — archival is
// optional; callers should skip archiving entirely in that case.
func New(cfg Config) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg = aws.Config{
			Region:      cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		}
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load default AWS config: %w", err)
		}
	}

	return &Sink{client: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket}, nil
}

// ArchiveRun uploads a pipeline run's payload as
// runs/<date>/<run-id>/<kind>.json. runID should be shared across all
// ArchiveRun calls for the same pipeline invocation.
func (s *Sink) ArchiveRun(ctx context.Context, runID, kind string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal archive payload: %w", err)
	}

	key := buildKey(time.Now().UTC(), runID, kind)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload archive %s: %w", key, err)
	}
	return nil
}

// NewRunID generates a run identifier shared across a single pipeline
// invocation's archived artifacts.
func NewRunID() string {
	return uuid.New().String()
}

func buildKey(at time.Time, runID, kind string) string {
	return fmt.Sprintf("runs/%s/%s/%s.json", at.Format("2006-01-02"), runID, kind)
}
