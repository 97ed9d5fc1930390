package processor

import (
	"sort"

	"gapflow/models"
)

// Option instrument classes kept by the aggregator; futures and other
// derivative classes carry no call/put split.
var optionInstruments = map[string]struct{}{
	"OPTIDX": {},
	"OPTSTK": {},
}

const (
	optionTypeCall = "CE"
	optionTypePut  = "PE"
)

// AggregateOpenInterest sums option open interest per symbol and session.
// Call and put sums are outer-joined: a key observed on only one side still
// yields a feature with the missing side at zero. PCR divides put by call
// with a zero call sum replaced by 1; the substitution keeps the pipeline
// alive on empty call books at the cost of reporting PCR equal to the put
// sum there.
func AggregateOpenInterest(records []models.RawDerivativeRecord) []models.OpenInterestFeature {
	callSums := make(map[models.FeatureKey]int64)
	putSums := make(map[models.FeatureKey]int64)

	for _, rec := range records {
		if _, ok := optionInstruments[rec.Instrument]; !ok {
			continue
		}
		key := models.FeatureKey{Symbol: rec.Symbol, Date: rec.Date}
		switch rec.OptionType {
		case optionTypeCall:
			callSums[key] += rec.OpenInt
		case optionTypePut:
			putSums[key] += rec.OpenInt
		}
	}

	keys := make(map[models.FeatureKey]struct{}, len(callSums)+len(putSums))
	for k := range callSums {
		keys[k] = struct{}{}
	}
	for k := range putSums {
		keys[k] = struct{}{}
	}

	features := make([]models.OpenInterestFeature, 0, len(keys))
	for k := range keys {
		call := callSums[k]
		put := putSums[k]

		denom := float64(call)
		if call == 0 {
			denom = 1
		}

		features = append(features, models.OpenInterestFeature{
			Symbol: k.Symbol,
			Date:   k.Date,
			CallOI: call,
			PutOI:  put,
			PCR:    float64(put) / denom,
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
