package models

import "context"

// FeatureVector carries the model-facing columns of a TrainingRow. The label
// is intentionally absent; it is ground truth, not an input.
type FeatureVector struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	VWAP      float64
	TotTrdQty int64
	CallOI    int64
	PutOI     int64
	PCR       float64
}

// Features projects the row onto its model input columns.
func (r TrainingRow) Features() FeatureVector {
	return FeatureVector{
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		VWAP:      r.VWAP,
		TotTrdQty: r.TotTrdQty,
		CallOI:    r.CallOI,
		PutOI:     r.PutOI,
		PCR:       r.PCR,
	}
}

// Classifier is the contract a downstream gap-direction model fulfils. The
// pipeline only produces the training table; fitting, persistence and serving
// live outside this repository.
type Classifier interface {
	Fit(ctx context.Context, rows []TrainingRow) error
	Predict(ctx context.Context, features FeatureVector) (GapLabel, error)
}
