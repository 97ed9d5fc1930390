// Package processor turns staged bhavcopy files into the final training
// table: extraction, open-interest aggregation, equity features, gap labels
// and assembly.
package processor

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gapflow/logger"
	"gapflow/models"
)

// Staged filenames carry the trading date at a fixed offset:
// cm01JAN2024bhav.csv / fo01JAN2024bhav.csv. Anything else in the staging
// directory is ignored.
var (
	equityFileRe     = regexp.MustCompile(`^cm(\d{2}[A-Za-z]{3}\d{4})bhav\.csv$`)
	derivativeFileRe = regexp.MustCompile(`^fo(\d{2}[A-Za-z]{3}\d{4})bhav\.csv$`)
)

const fileDateLayout = "02Jan2006"

// ExtractEquity scans the equity staging directory and returns one immutable
// batch per staged file, restricted to the symbol universe. A missing
// directory yields no batches; a file with an unexpected schema is logged and
// skipped so one bad file cannot poison the run.
func ExtractEquity(dir string, universe models.SymbolSet) ([]models.EquityBatch, error) {
	log := logger.GetLogger().WithComponent("extractor")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}

	var batches []models.EquityBatch
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := equityFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		date, err := time.Parse(fileDateLayout, m[1])
		if err != nil {
			log.WithFields(logger.Fields{"file": entry.Name()}).Warn("unparsable date in staged filename")
			continue
		}

		records, err := parseEquityFile(filepath.Join(dir, entry.Name()), date.UTC(), universe)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": entry.Name()}).Error("skipping equity file")
			continue
		}
		batches = append(batches, models.EquityBatch{Date: date.UTC(), Records: records})
	}
	return batches, nil
}

// ExtractDerivatives is the F&O counterpart of ExtractEquity.
func ExtractDerivatives(dir string, universe models.SymbolSet) ([]models.DerivativeBatch, error) {
	log := logger.GetLogger().WithComponent("extractor")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}

	var batches []models.DerivativeBatch
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := derivativeFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		date, err := time.Parse(fileDateLayout, m[1])
		if err != nil {
			log.WithFields(logger.Fields{"file": entry.Name()}).Warn("unparsable date in staged filename")
			continue
		}

		records, err := parseDerivativeFile(filepath.Join(dir, entry.Name()), date.UTC(), universe)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": entry.Name()}).Error("skipping derivative file")
			continue
		}
		batches = append(batches, models.DerivativeBatch{Date: date.UTC(), Records: records})
	}
	return batches, nil
}

// FoldEquity combines extraction batches into one record set. Order across
// batches does not matter; the feature builder sorts explicitly.
func FoldEquity(batches []models.EquityBatch) []models.RawEquityRecord {
	var records []models.RawEquityRecord
	for _, b := range batches {
		records = append(records, b.Records...)
	}
	return records
}

// FoldDerivatives combines derivative batches into one record set.
func FoldDerivatives(batches []models.DerivativeBatch) []models.RawDerivativeRecord {
	var records []models.RawDerivativeRecord
	for _, b := range batches {
		records = append(records, b.Records...)
	}
	return records
}

// header maps column names to field positions, trimming whitespace the
// upstream files carry around header names.
type header map[string]int

func readHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		h[strings.TrimSpace(name)] = i
	}
	return h
}

func (h header) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := h[c]; !ok {
			return fmt.Errorf("missing required column %s", c)
		}
	}
	return nil
}

func (h header) str(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) float(row []string, col string) (float64, error) {
	s := h.str(row, col)
	if s == "" {
		return 0, fmt.Errorf("empty value in column %s", col)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad value %q in column %s", s, col)
	}
	return v, nil
}

func (h header) int(row []string, col string) (int64, error) {
	v, err := h.float(row, col)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func parseEquityFile(path string, date time.Time, universe models.SymbolSet) ([]models.RawEquityRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	h := readHeader(rows[0])
	if err := h.require("SYMBOL", "OPEN", "HIGH", "LOW", "CLOSE", "TOTTRDQTY", "TOTTRDVAL"); err != nil {
		return nil, err
	}

	var records []models.RawEquityRecord
	for i, row := range rows[1:] {
		symbol := h.str(row, "SYMBOL")
		if !universe.Has(symbol) {
			continue
		}

		rec := models.RawEquityRecord{
			Symbol: symbol,
			Series: h.str(row, "SERIES"),
			Date:   date,
		}
		if rec.Open, err = h.float(row, "OPEN"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if rec.High, err = h.float(row, "HIGH"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if rec.Low, err = h.float(row, "LOW"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if rec.Close, err = h.float(row, "CLOSE"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if rec.TotTrdQty, err = h.int(row, "TOTTRDQTY"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if rec.TotTrdVal, err = h.float(row, "TOTTRDVAL"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseDerivativeFile(path string, date time.Time, universe models.SymbolSet) ([]models.RawDerivativeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	h := readHeader(rows[0])
	if err := h.require("SYMBOL", "INSTRUMENT", "OPTION_TYP", "OPEN_INT"); err != nil {
		return nil, err
	}

	var records []models.RawDerivativeRecord
	for i, row := range rows[1:] {
		symbol := h.str(row, "SYMBOL")
		if !universe.Has(symbol) {
			continue
		}

		rec := models.RawDerivativeRecord{
			Symbol:     symbol,
			Instrument: h.str(row, "INSTRUMENT"),
			OptionType: h.str(row, "OPTION_TYP"),
			Expiry:     h.str(row, "EXPIRY_DT"),
			Date:       date,
		}
		if rec.OpenInt, err = h.int(row, "OPEN_INT"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		// STRIKE_PR is informative only; absent or blank is fine.
		if s := h.str(row, "STRIKE_PR"); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				rec.StrikePrice = v
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
