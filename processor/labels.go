package processor

import "gapflow/models"

// LabelGaps fills in the forward-looking gap columns on a feature sequence
// already sorted by (symbol, date). For each row the next session open is the
// open of the following row with the same symbol; the last row per symbol has
// no next open and stays unlabeled so intermediate tables remain inspectable.
// Unlabeled rows are excluded at assembly, never defaulted.
//
// The input is not mutated; a labeled copy is returned.
func LabelGaps(features []models.EquityFeature) []models.EquityFeature {
	labeled := make([]models.EquityFeature, len(features))
	copy(labeled, features)

	for i := range labeled {
		if i+1 >= len(labeled) || labeled[i+1].Symbol != labeled[i].Symbol {
			continue
		}
		row := &labeled[i]
		row.NextOpen = labeled[i+1].Open
		row.Gap = row.NextOpen - row.Close
		row.GapPct = round2(row.Gap / row.Close * 100)
		row.Label = models.LabelGap(row.GapPct)
		row.Labeled = true
	}
	return labeled
}
