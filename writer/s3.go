package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gapflow/logger"
)

// upload ships a written dataset file to the configured bucket. Keys are
// partitioned by run date and disambiguated by run ID so successive backfills
// never overwrite each other.
func (w *DatasetWriter) upload(ctx context.Context, localPath string) error {
	if w.s3Client == nil {
		return fmt.Errorf("s3 client not configured")
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s for upload: %w", localPath, err)
	}

	key := w.objectKey(filepath.Base(localPath), time.Now().UTC())

	if _, err := w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.config.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	logger.RecordUpload(int64(len(data)))
	w.log.WithComponent("dataset_writer").WithFields(logger.Fields{
		"bucket":    w.config.Storage.S3.Bucket,
		"s3_key":    key,
		"file_size": len(data),
	}).Info("dataset uploaded")
	return nil
}

func (w *DatasetWriter) objectKey(filename string, now time.Time) string {
	datePart := fmt.Sprintf("year=%04d/month=%02d/day=%02d", now.Year(), now.Month(), now.Day())
	name := fmt.Sprintf("%s_%s", w.runID, filename)
	return path.Join(w.config.Storage.S3.Prefix, datePart, name)
}
