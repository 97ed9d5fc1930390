// Package writer persists the assembled training table. CSV is the canonical
// artifact; a parquet mirror and an S3 upload are optional per configuration.
package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "gapflow/config"
	"gapflow/logger"
	"gapflow/models"
)

const dateLayout = "2006-01-02"

var datasetHeader = []string{
	"SYMBOL", "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VWAP", "TOTTRDQTY",
	"NEXT_OPEN", "GAP", "GAP_PCT", "GAP_LABEL", "CALL_OI", "PUT_OI", "PCR",
}

// DatasetWriter persists training rows to disk and optionally mirrors them to
// parquet and S3.
type DatasetWriter struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
	runID    string
}

// NewDatasetWriter builds a writer; when S3 is enabled the client and
// credentials are validated up front so a misconfigured sink fails the run
// early instead of after a long backfill.
func NewDatasetWriter(cfg *appconfig.Config) (*DatasetWriter, error) {
	log := logger.GetLogger()

	w := &DatasetWriter{
		config: cfg,
		log:    log,
		runID:  uuid.New().String(),
	}

	if cfg.Storage.S3.Enabled {
		ctx := context.Background()

		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Storage.S3.Region),
		}
		if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Storage.S3.AccessKeyID,
					cfg.Storage.S3.SecretAccessKey,
					"",
				),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}

		creds, err := awsCfg.Credentials.Retrieve(ctx)
		if err != nil || !creds.HasKeys() {
			return nil, fmt.Errorf("aws credentials not found")
		}

		w.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Storage.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
			}
			o.UsePathStyle = cfg.Storage.S3.PathStyle
		})

		log.WithComponent("dataset_writer").WithFields(logger.Fields{
			"bucket":     cfg.Storage.S3.Bucket,
			"region":     cfg.Storage.S3.Region,
			"path_style": cfg.Storage.S3.PathStyle,
		}).Info("s3 upload enabled")
	}

	return w, nil
}

// Write persists rows to path as CSV, plus the configured parquet mirror and
// S3 uploads. An empty row set still writes a header-only file; a run over an
// empty market window is valid.
func (w *DatasetWriter) Write(ctx context.Context, rows []models.TrainingRow, path string) error {
	log := w.log.WithComponent("dataset_writer").WithFields(logger.Fields{
		"path": path,
		"rows": len(rows),
	})

	if err := writeCSV(path, rows); err != nil {
		log.WithError(err).Error("failed to write dataset")
		return err
	}
	logger.RecordRowsWritten(len(rows))
	log.Info("dataset written")

	if w.config.Storage.S3.Enabled {
		if err := w.upload(ctx, path); err != nil {
			log.WithError(err).WithEnv("S3_BUCKET").Error("failed to upload dataset")
			return err
		}
	}

	if w.config.Writer.Formats.Parquet.Enabled {
		parquetPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".parquet"
		data, err := w.createParquetFile(rows)
		if err != nil {
			log.WithError(err).Error("failed to build parquet mirror")
			return err
		}
		if err := os.WriteFile(parquetPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write parquet mirror: %w", err)
		}
		log.WithFields(logger.Fields{"parquet_path": parquetPath, "file_size": len(data)}).Info("parquet mirror written")

		if w.config.Storage.S3.Enabled {
			if err := w.upload(ctx, parquetPath); err != nil {
				log.WithError(err).Error("failed to upload parquet mirror")
				return err
			}
		}
	}

	return nil
}

func writeCSV(path string, rows []models.TrainingRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(datasetHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Symbol,
			row.Date.Format(dateLayout),
			formatFloat(row.Open),
			formatFloat(row.High),
			formatFloat(row.Low),
			formatFloat(row.Close),
			formatFloat(row.VWAP),
			strconv.FormatInt(row.TotTrdQty, 10),
			formatFloat(row.NextOpen),
			formatFloat(row.Gap),
			formatFloat(row.GapPct),
			string(row.GapLabel),
			strconv.FormatInt(row.CallOI, 10),
			strconv.FormatInt(row.PutOI, 10),
			formatFloat(row.PCR),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadDataset loads a persisted CSV dataset back into rows. Consumers use it
// to feed the training table into a classifier without reimplementing the
// column contract.
func ReadDataset(path string) ([]models.TrainingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	if strings.Join(records[0], ",") != strings.Join(datasetHeader, ",") {
		return nil, fmt.Errorf("unexpected dataset header %v", records[0])
	}

	rows := make([]models.TrainingRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(datasetHeader) {
			return nil, fmt.Errorf("row %d: expected %d fields, got %d", i+2, len(datasetHeader), len(record))
		}
		date, err := time.Parse(dateLayout, record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad date %q", i+2, record[1])
		}

		row := models.TrainingRow{
			Symbol:   record[0],
			Date:     date.UTC(),
			GapLabel: models.GapLabel(record[11]),
		}
		floats := map[int]*float64{
			2: &row.Open, 3: &row.High, 4: &row.Low, 5: &row.Close,
			6: &row.VWAP, 8: &row.NextOpen, 9: &row.Gap, 10: &row.GapPct,
			14: &row.PCR,
		}
		for idx, dst := range floats {
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad value %q in %s", i+2, record[idx], datasetHeader[idx])
			}
			*dst = v
		}
		ints := map[int]*int64{7: &row.TotTrdQty, 12: &row.CallOI, 13: &row.PutOI}
		for idx, dst := range ints {
			v, err := strconv.ParseInt(record[idx], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad value %q in %s", i+2, record[idx], datasetHeader[idx])
			}
			*dst = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
