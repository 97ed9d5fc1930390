package models

import "time"

// GapLabel classifies the overnight gap between a session close and the next
// session open.
type GapLabel string

const (
	GapUp   GapLabel = "GAP_UP"
	GapDown GapLabel = "GAP_DOWN"
	GapFlat GapLabel = "FLAT"
)

// Gap percentage thresholds for the three-way classification.
const (
	GapUpThresholdPct   = 0.3
	GapDownThresholdPct = -0.3
)

// LabelGap maps a gap percentage onto its label.
func LabelGap(gapPct float64) GapLabel {
	switch {
	case gapPct > GapUpThresholdPct:
		return GapUp
	case gapPct < GapDownThresholdPct:
		return GapDown
	default:
		return GapFlat
	}
}

// FeatureKey identifies a per-symbol per-session feature row.
type FeatureKey struct {
	Symbol string
	Date   time.Time
}

// OpenInterestFeature holds the summed option open interest per symbol and
// session. PCR uses a denominator of 1 when CallOI is zero; that substitution
// avoids a division fault but masks genuinely empty call books, so consumers
// should treat PCR with CallOI==0 as approximate.
type OpenInterestFeature struct {
	Symbol string
	Date   time.Time
	CallOI int64
	PutOI  int64
	PCR    float64
}

// Key returns the join key of the feature.
func (f OpenInterestFeature) Key() FeatureKey {
	return FeatureKey{Symbol: f.Symbol, Date: f.Date}
}

// EquityFeature is the per-session cash-market feature row. NextOpen, Gap,
// GapPct and Label are populated by gap labeling and only meaningful when
// Labeled is true; the final session per symbol has no following open and
// stays unlabeled.
type EquityFeature struct {
	Symbol    string
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	VWAP      float64
	TotTrdQty int64

	NextOpen float64
	Gap      float64
	GapPct   float64
	Label    GapLabel
	Labeled  bool
}

// Key returns the join key of the feature.
func (f EquityFeature) Key() FeatureKey {
	return FeatureKey{Symbol: f.Symbol, Date: f.Date}
}

// TrainingRow is the fully joined, complete dataset row. Rows exist only when
// the equity side is labeled and an open-interest partner was observed for
// the same symbol and session.
type TrainingRow struct {
	Symbol    string
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	VWAP      float64
	TotTrdQty int64
	NextOpen  float64
	Gap       float64
	GapPct    float64
	GapLabel  GapLabel
	CallOI    int64
	PutOI     int64
	PCR       float64
}
