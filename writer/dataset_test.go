package writer

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "gapflow/config"
	"gapflow/models"
)

func testRows() []models.TrainingRow {
	return []models.TrainingRow{
		{
			Symbol:    "X",
			Date:      time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC),
			Open:      99,
			High:      101,
			Low:       98.5,
			Close:     100,
			VWAP:      100,
			TotTrdQty: 1000,
			NextOpen:  100.5,
			Gap:       0.5,
			GapPct:    0.5,
			GapLabel:  models.GapUp,
			CallOI:    100,
			PutOI:     90,
			PCR:       0.9,
		},
	}
}

func testWriter(t *testing.T) *DatasetWriter {
	t.Helper()
	w, err := NewDatasetWriter(&appconfig.Config{})
	if err != nil {
		t.Fatalf("NewDatasetWriter: %v", err)
	}
	return w
}

func TestWriteAndReadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dataset.csv")
	w := testWriter(t)

	if err := w.Write(context.Background(), testRows(), path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows, err := ReadDataset(path)
	if err != nil {
		t.Fatalf("ReadDataset failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Symbol != "X" || row.GapLabel != models.GapUp {
		t.Errorf("unexpected row %+v", row)
	}
	if row.GapPct != 0.5 || row.PCR != 0.9 || row.VWAP != 100 {
		t.Errorf("numeric columns did not round-trip: %+v", row)
	}
	if row.TotTrdQty != 1000 || row.CallOI != 100 || row.PutOI != 90 {
		t.Errorf("integer columns did not round-trip: %+v", row)
	}
	if !row.Date.Equal(time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date did not round-trip: %s", row.Date)
	}
}

func TestWriteEmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	w := testWriter(t)

	if err := w.Write(context.Background(), nil, path); err != nil {
		t.Fatalf("empty dataset must still write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected header only, got %d lines", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(datasetHeader, ",") {
		t.Errorf("unexpected header %v", records[0])
	}
}

func TestWriteDatasetHeaderContract(t *testing.T) {
	want := "SYMBOL,DATE,OPEN,HIGH,LOW,CLOSE,VWAP,TOTTRDQTY,NEXT_OPEN,GAP,GAP_PCT,GAP_LABEL,CALL_OI,PUT_OI,PCR"
	if got := strings.Join(datasetHeader, ","); got != want {
		t.Fatalf("header contract changed:\n got %s\nwant %s", got, want)
	}
}

func TestReadDatasetRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	if err := os.WriteFile(path, []byte("a,b,c\n1,2,3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadDataset(path); err == nil {
		t.Fatal("expected header mismatch error")
	}
}

func TestParquetMirror(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")

	cfg := &appconfig.Config{}
	cfg.Writer.Formats.Parquet.Enabled = true
	cfg.Writer.Formats.Parquet.Compression = "snappy"
	w, err := NewDatasetWriter(cfg)
	if err != nil {
		t.Fatalf("NewDatasetWriter: %v", err)
	}

	if err := w.Write(context.Background(), testRows(), path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "dataset.parquet"))
	if err != nil {
		t.Fatalf("parquet mirror missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("parquet mirror is empty")
	}
}

func TestObjectKeyPartitioning(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.Prefix = "gapflow/datasets"
	w, err := NewDatasetWriter(cfg)
	if err != nil {
		t.Fatalf("NewDatasetWriter: %v", err)
	}

	now := time.Date(2024, time.February, 7, 12, 0, 0, 0, time.UTC)
	key := w.objectKey("dataset.csv", now)
	if !strings.HasPrefix(key, "gapflow/datasets/year=2024/month=02/day=07/") {
		t.Errorf("unexpected key %s", key)
	}
	if !strings.HasSuffix(key, "_dataset.csv") {
		t.Errorf("key missing filename suffix: %s", key)
	}
}
