package processor

import (
	"math"
	"sort"

	"gapflow/models"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildEquityFeatures derives the per-session equity feature rows. Rows with
// a non-positive traded quantity are excluded up front: VWAP is undefined for
// them and they would otherwise divide by zero. The result is sorted by
// symbol then date, which the label generator depends on.
func BuildEquityFeatures(records []models.RawEquityRecord) []models.EquityFeature {
	features := make([]models.EquityFeature, 0, len(records))
	for _, rec := range records {
		if rec.TotTrdQty <= 0 {
			continue
		}
		features = append(features, models.EquityFeature{
			Symbol:    rec.Symbol,
			Date:      rec.Date,
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			VWAP:      round2(rec.TotTrdVal / float64(rec.TotTrdQty)),
			TotTrdQty: rec.TotTrdQty,
		})
	}

	sort.Slice(features, func(i, j int) bool {
		if features[i].Symbol != features[j].Symbol {
			return features[i].Symbol < features[j].Symbol
		}
		return features[i].Date.Before(features[j].Date)
	})
	return features
}
