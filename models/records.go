package models

import "time"

// RawEquityRecord is one row of a cash-market bhavcopy, tagged with the
// trading date derived from the archive filename. The bhavcopy itself has no
// usable date column; the filename convention is authoritative.
type RawEquityRecord struct {
	Symbol    string
	Series    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	TotTrdQty int64
	TotTrdVal float64
	Date      time.Time
}

// RawDerivativeRecord is one row of an F&O bhavcopy. Instrument is the
// exchange instrument class (OPTIDX, OPTSTK, FUTIDX, ...), OptionType is CE,
// PE or XX for futures.
type RawDerivativeRecord struct {
	Symbol      string
	Instrument  string
	OptionType  string
	StrikePrice float64
	Expiry      string
	OpenInt     int64
	Date        time.Time
}

// EquityBatch holds the records extracted from a single staged bhavcopy file.
// Batches are immutable once returned; callers fold them into a full record
// set instead of appending to shared state.
type EquityBatch struct {
	Date    time.Time
	Records []RawEquityRecord
}

// DerivativeBatch is the F&O counterpart of EquityBatch.
type DerivativeBatch struct {
	Date    time.Time
	Records []RawDerivativeRecord
}

// SymbolSet is the fixed universe of instruments the pipeline keeps. Matching
// is exact against the upstream SYMBOL field.
type SymbolSet map[string]struct{}

// NewSymbolSet builds a SymbolSet from a configured symbol list.
func NewSymbolSet(symbols []string) SymbolSet {
	set := make(SymbolSet, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

// Has reports whether symbol belongs to the universe.
func (s SymbolSet) Has(symbol string) bool {
	_, ok := s[symbol]
	return ok
}
