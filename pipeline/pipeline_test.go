package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "gapflow/config"
	"gapflow/internal/calendar"
	"gapflow/models"
	"gapflow/writer"
)

const equityDay1 = `SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE,LAST,PREVCLOSE,TOTTRDQTY,TOTTRDVAL,TIMESTAMP,TOTALTRADES,ISIN
X,EQ,99.00,101.00,98.50,100.00,100.00,99.50,1000,100000.00,04-JAN-2024,500,INE000X01010
OUTSIDER,EQ,5.00,6.00,4.00,5.50,5.50,5.00,10,55.00,04-JAN-2024,2,INE000Y01010
`

const equityDay2 = `SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE,LAST,PREVCLOSE,TOTTRDQTY,TOTTRDVAL,TIMESTAMP,TOTALTRADES,ISIN
X,EQ,100.50,102.00,100.00,101.00,101.00,100.00,900,90900.00,05-JAN-2024,450,INE000X01010
`

const fnoDay1 = `INSTRUMENT,SYMBOL,EXPIRY_DT,STRIKE_PR,OPTION_TYP,OPEN,HIGH,LOW,CLOSE,SETTLE_PR,CONTRACTS,VAL_INLAKH,OPEN_INT,CHG_IN_OI,TIMESTAMP
OPTSTK,X,25-JAN-2024,100.00,CE,2.00,3.00,1.50,2.50,2.50,50,1.00,100,10,04-JAN-2024
OPTSTK,X,25-JAN-2024,100.00,PE,1.50,2.50,1.00,2.00,2.00,40,0.80,90,5,04-JAN-2024
FUTSTK,X,25-JAN-2024,0.00,XX,100.50,102.00,100.00,101.00,101.00,80,2.00,12345,100,04-JAN-2024
`

const fnoDay2 = `INSTRUMENT,SYMBOL,EXPIRY_DT,STRIKE_PR,OPTION_TYP,OPEN,HIGH,LOW,CLOSE,SETTLE_PR,CONTRACTS,VAL_INLAKH,OPEN_INT,CHG_IN_OI,TIMESTAMP
OPTSTK,X,25-JAN-2024,100.00,CE,2.00,3.00,1.50,2.50,2.50,50,1.00,110,10,05-JAN-2024
OPTSTK,X,25-JAN-2024,100.00,PE,1.50,2.50,1.00,2.00,2.00,40,0.80,80,5,05-JAN-2024
`

func zipWith(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("create zip member: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write zip member: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func archiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	archives := map[string][]byte{
		"/EQUITIES/2024/JAN/cm04JAN2024bhav.csv.zip":    zipWith(t, "cm04JAN2024bhav.csv", equityDay1),
		"/EQUITIES/2024/JAN/cm05JAN2024bhav.csv.zip":    zipWith(t, "cm05JAN2024bhav.csv", equityDay2),
		"/DERIVATIVES/2024/JAN/fo04JAN2024bhav.csv.zip": zipWith(t, "fo04JAN2024bhav.csv", fnoDay1),
		"/DERIVATIVES/2024/JAN/fo05JAN2024bhav.csv.zip": zipWith(t, "fo05JAN2024bhav.csv", fnoDay2),
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
}

func pipelineConfig(baseURL, stagingDir string) *appconfig.Config {
	cfg := &appconfig.Config{
		Universe: []string{"X"},
	}
	cfg.Gapflow.Name = "GapflowTest"
	cfg.Gapflow.Version = "test"
	cfg.Source.BaseURL = baseURL
	cfg.Source.Timeout = appconfig.Duration(5 * time.Second)
	cfg.Source.UserAgent = "Mozilla/5.0"
	cfg.Staging.Dir = stagingDir
	cfg.Fetcher.MaxWorkers = 2
	cfg.Fetcher.RequestsPerSecond = 100
	cfg.Fetcher.BurstSize = 10
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	server := archiveServer(t)
	defer server.Close()

	cfg := pipelineConfig(server.URL, t.TempDir())
	runner, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	// Thu 2024-01-04 and Fri 2024-01-05 have data; Mon 2024-01-08 does
	// not, standing in for a holiday.
	days := calendar.TradingDays(
		time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC),
	)
	if len(days) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(days))
	}

	outPath := filepath.Join(t.TempDir(), "dataset.csv")
	summary, err := runner.Run(context.Background(), days, outPath)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.FetchOK != 4 {
		t.Errorf("expected 4 successful fetches, got %d", summary.FetchOK)
	}
	if summary.FetchNoData != 2 {
		t.Errorf("expected 2 no-data fetches, got %d", summary.FetchNoData)
	}
	if summary.FetchFailed != 0 {
		t.Errorf("expected no failed fetches, got %d", summary.FetchFailed)
	}
	if summary.DatasetRows != 1 {
		t.Fatalf("expected 1 dataset row, got %d", summary.DatasetRows)
	}

	rows, err := writer.ReadDataset(outPath)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted row, got %d", len(rows))
	}

	row := rows[0]
	if row.Symbol != "X" || !row.Date.Equal(days[0]) {
		t.Fatalf("unexpected row key %s/%s", row.Symbol, row.Date)
	}
	if row.VWAP != 100 {
		t.Errorf("expected VWAP 100, got %v", row.VWAP)
	}
	if row.NextOpen != 100.5 || row.Gap != 0.5 || row.GapPct != 0.5 {
		t.Errorf("unexpected gap columns %+v", row)
	}
	if row.GapLabel != models.GapUp {
		t.Errorf("expected GAP_UP, got %s", row.GapLabel)
	}
	if row.CallOI != 100 || row.PutOI != 90 || row.PCR != 0.9 {
		t.Errorf("unexpected OI columns %+v", row)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	server := archiveServer(t)
	defer server.Close()

	cfg := pipelineConfig(server.URL, t.TempDir())
	runner, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	days := calendar.TradingDays(
		time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
	)
	outPath := filepath.Join(t.TempDir(), "dataset.csv")

	if _, err := runner.Run(context.Background(), days, outPath); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read first output: %v", err)
	}

	if _, err := runner.Run(context.Background(), days, outPath); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read second output: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("re-running over the same window changed the dataset")
	}
}

func TestRunAllMissingIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	cfg := pipelineConfig(server.URL, t.TempDir())
	runner, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	days := calendar.TradingDays(
		time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
	)
	outPath := filepath.Join(t.TempDir(), "dataset.csv")

	summary, err := runner.Run(context.Background(), days, outPath)
	if err != nil {
		t.Fatalf("a window with no data must not fail the run: %v", err)
	}
	if summary.DatasetRows != 0 {
		t.Errorf("expected empty dataset, got %d rows", summary.DatasetRows)
	}

	rows, err := writer.ReadDataset(outPath)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected 0 persisted rows, got %d", len(rows))
	}
}
