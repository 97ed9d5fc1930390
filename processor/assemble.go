package processor

import "gapflow/models"

// Assemble left-joins labeled equity features with open-interest features on
// (symbol, date) and keeps only complete rows: an unlabeled equity row (last
// session per symbol) or one with no open-interest partner is dropped. An
// open-interest feature with a zero side is complete; zero is an observed
// sum, not a missing value.
//
// The equity slice drives the output order, so rows come out sorted by
// (symbol, date) like their input.
func Assemble(equity []models.EquityFeature, oi []models.OpenInterestFeature) []models.TrainingRow {
	oiByKey := make(map[models.FeatureKey]models.OpenInterestFeature, len(oi))
	for _, f := range oi {
		oiByKey[f.Key()] = f
	}

	rows := make([]models.TrainingRow, 0, len(equity))
	for _, eq := range equity {
		if !eq.Labeled {
			continue
		}
		oiFeature, ok := oiByKey[eq.Key()]
		if !ok {
			continue
		}

		rows = append(rows, models.TrainingRow{
			Symbol:    eq.Symbol,
			Date:      eq.Date,
			Open:      eq.Open,
			High:      eq.High,
			Low:       eq.Low,
			Close:     eq.Close,
			VWAP:      eq.VWAP,
			TotTrdQty: eq.TotTrdQty,
			NextOpen:  eq.NextOpen,
			Gap:       eq.Gap,
			GapPct:    eq.GapPct,
			GapLabel:  eq.Label,
			CallOI:    oiFeature.CallOI,
			PutOI:     oiFeature.PutOI,
			PCR:       oiFeature.PCR,
		})
	}
	return rows
}
