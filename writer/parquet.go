package writer

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	"gapflow/models"
)

// parquetRow mirrors the CSV column contract in parquet form.
type parquetRow struct {
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date      string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	VWAP      float64 `parquet:"name=vwap, type=DOUBLE"`
	TotTrdQty int64   `parquet:"name=tottrdqty, type=INT64"`
	NextOpen  float64 `parquet:"name=next_open, type=DOUBLE"`
	Gap       float64 `parquet:"name=gap, type=DOUBLE"`
	GapPct    float64 `parquet:"name=gap_pct, type=DOUBLE"`
	GapLabel  string  `parquet:"name=gap_label, type=BYTE_ARRAY, convertedtype=UTF8"`
	CallOI    int64   `parquet:"name=call_oi, type=INT64"`
	PutOI     int64   `parquet:"name=put_oi, type=INT64"`
	PCR       float64 `parquet:"name=pcr, type=DOUBLE"`
}

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; report the current end of buffer.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

func (w *DatasetWriter) createParquetFile(rows []models.TrainingRow) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.config.Writer.Formats.Parquet.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		record := parquetRow{
			Symbol:    row.Symbol,
			Date:      row.Date.Format(dateLayout),
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			VWAP:      row.VWAP,
			TotTrdQty: row.TotTrdQty,
			NextOpen:  row.NextOpen,
			Gap:       row.Gap,
			GapPct:    row.GapPct,
			GapLabel:  string(row.GapLabel),
			CallOI:    row.CallOI,
			PutOI:     row.PutOI,
			PCR:       row.PCR,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return fw.Bytes(), nil
}
