package processor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gapflow/models"
)

const equityCSV = `SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE,LAST,PREVCLOSE,TOTTRDQTY,TOTTRDVAL,TIMESTAMP,TOTALTRADES,ISIN
RELIANCE,EQ,2900.00,2950.00,2890.00,2940.00,2940.00,2895.00,1000,2925000.00,04-JAN-2024,500,INE002A01018
UNLISTED,EQ,10.00,11.00,9.00,10.50,10.50,10.00,100,1050.00,04-JAN-2024,10,INE000000000
TCS,EQ,3700.00,3760.00,3690.00,3750.00,3750.00,3705.00,2000,7450000.00,04-JAN-2024,900,INE467B01029
`

const derivativeCSV = `INSTRUMENT,SYMBOL,EXPIRY_DT,STRIKE_PR,OPTION_TYP,OPEN,HIGH,LOW,CLOSE,SETTLE_PR,CONTRACTS,VAL_INLAKH,OPEN_INT,CHG_IN_OI,TIMESTAMP
OPTIDX,NIFTY,25-JAN-2024,21000.00,CE,150.00,180.00,140.00,170.00,170.00,500,100.00,1200,100,04-JAN-2024
OPTIDX,NIFTY,25-JAN-2024,21000.00,PE,90.00,120.00,80.00,100.00,100.00,400,80.00,900,50,04-JAN-2024
FUTIDX,NIFTY,25-JAN-2024,0.00,XX,21100.00,21200.00,21000.00,21150.00,21150.00,800,200.00,5000,200,04-JAN-2024
OPTSTK,UNLISTED,25-JAN-2024,100.00,CE,5.00,6.00,4.00,5.50,5.50,10,1.00,50,5,04-JAN-2024
`

func writeStaged(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write staged file: %v", err)
	}
}

func TestExtractEquityFiltersAndTags(t *testing.T) {
	dir := t.TempDir()
	writeStaged(t, dir, "cm04JAN2024bhav.csv", equityCSV)
	writeStaged(t, dir, "notes.txt", "ignore me")
	writeStaged(t, dir, "fo04JAN2024bhav.csv", derivativeCSV) // wrong prefix for this extractor

	universe := models.NewSymbolSet([]string{"RELIANCE", "TCS", "NIFTY"})
	batches, err := ExtractEquity(dir, universe)
	if err != nil {
		t.Fatalf("ExtractEquity failed: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}

	records := batches[0].Records
	if len(records) != 2 {
		t.Fatalf("expected 2 universe records, got %d", len(records))
	}
	wantDate := time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC)
	for _, rec := range records {
		if rec.Symbol == "UNLISTED" {
			t.Error("symbol outside universe survived extraction")
		}
		if !rec.Date.Equal(wantDate) {
			t.Errorf("record date %s, want %s (from filename)", rec.Date, wantDate)
		}
	}
	if records[0].Symbol != "RELIANCE" || records[0].TotTrdQty != 1000 || records[0].Close != 2940 {
		t.Errorf("unexpected first record %+v", records[0])
	}
}

func TestExtractEquityMissingDirectory(t *testing.T) {
	batches, err := ExtractEquity(filepath.Join(t.TempDir(), "absent"), models.NewSymbolSet([]string{"X"}))
	if err != nil {
		t.Fatalf("missing staging dir must not error: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("expected no batches, got %d", len(batches))
	}
}

func TestExtractEquitySkipsBadSchema(t *testing.T) {
	dir := t.TempDir()
	writeStaged(t, dir, "cm04JAN2024bhav.csv", "SYMBOL,OPEN\nRELIANCE,2900\n") // missing columns
	writeStaged(t, dir, "cm05JAN2024bhav.csv", equityCSV)

	batches, err := ExtractEquity(dir, models.NewSymbolSet([]string{"RELIANCE", "TCS"}))
	if err != nil {
		t.Fatalf("ExtractEquity failed: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected the bad file to be isolated, got %d batches", len(batches))
	}
	if !batches[0].Date.Equal(time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("surviving batch has wrong date %s", batches[0].Date)
	}
}

func TestExtractDerivatives(t *testing.T) {
	dir := t.TempDir()
	writeStaged(t, dir, "fo04JAN2024bhav.csv", derivativeCSV)

	batches, err := ExtractDerivatives(dir, models.NewSymbolSet([]string{"NIFTY"}))
	if err != nil {
		t.Fatalf("ExtractDerivatives failed: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}

	records := batches[0].Records
	if len(records) != 3 {
		t.Fatalf("expected 3 NIFTY records (incl. futures), got %d", len(records))
	}
	if records[0].Instrument != "OPTIDX" || records[0].OptionType != "CE" || records[0].OpenInt != 1200 {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[0].StrikePrice != 21000 {
		t.Errorf("expected strike 21000, got %v", records[0].StrikePrice)
	}
}

func TestExtractIdempotentOnRestage(t *testing.T) {
	dir := t.TempDir()
	universe := models.NewSymbolSet([]string{"RELIANCE", "TCS"})

	writeStaged(t, dir, "cm04JAN2024bhav.csv", equityCSV)
	first, err := ExtractEquity(dir, universe)
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}

	// Re-staging the same date overwrites by filename, so a second pass
	// sees the same records, not duplicates.
	writeStaged(t, dir, "cm04JAN2024bhav.csv", equityCSV)
	second, err := ExtractEquity(dir, universe)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}

	if len(FoldEquity(first)) != len(FoldEquity(second)) {
		t.Fatalf("restaging changed record count: %d vs %d",
			len(FoldEquity(first)), len(FoldEquity(second)))
	}
}
