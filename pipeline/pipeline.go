// Package pipeline runs the end-to-end batch: enumerate sessions, fetch and
// stage both archives per session, then derive features, labels and the final
// training table once all fetch work has settled.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appconfig "gapflow/config"
	"gapflow/logger"
	"gapflow/models"
	"gapflow/processor"
	"gapflow/reader/nse"
	"gapflow/writer"
)

// Summary reports what a run did, for logs and tests.
type Summary struct {
	Sessions    int
	FetchOK     int64
	FetchNoData int64
	FetchFailed int64
	EquityRows  int
	OIRows      int
	DatasetRows int
}

// Runner owns the pipeline stages for one configured deployment. A Runner is
// reusable across runs; every run refetches and rebuilds the whole table.
type Runner struct {
	config   *appconfig.Config
	fetcher  *nse.Fetcher
	writer   *writer.DatasetWriter
	limiter  *rate.Limiter
	universe models.SymbolSet
	log      *logger.Log
}

// NewRunner wires the fetcher, writer and rate limiter from configuration.
func NewRunner(cfg *appconfig.Config) (*Runner, error) {
	w, err := writer.NewDatasetWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset writer: %w", err)
	}

	return &Runner{
		config:   cfg,
		fetcher:  nse.NewFetcher(cfg),
		writer:   w,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Fetcher.RequestsPerSecond), cfg.Fetcher.BurstSize),
		universe: models.NewSymbolSet(cfg.Universe),
		log:      logger.GetLogger(),
	}, nil
}

type fetchJob struct {
	day  time.Time
	kind nse.Kind
}

// Run executes the batch over the given sessions and persists the dataset to
// outPath. Fetch failures never abort the run; an all-missing window produces
// a valid empty dataset.
func (r *Runner) Run(ctx context.Context, days []time.Time, outPath string) (*Summary, error) {
	runID := uuid.New().String()
	log := r.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": runID})

	summary := &Summary{Sessions: len(days)}
	log.WithFields(logger.Fields{
		"sessions": len(days),
		"workers":  r.config.Fetcher.MaxWorkers,
		"output":   outPath,
	}).Info("starting run")

	r.fetchAll(ctx, days, summary, log)

	// Everything below needs the complete staged record set, so it only
	// starts once the fetch pool has drained.
	equityBatches, err := processor.ExtractEquity(r.fetcher.StagingDir(nse.KindEquity), r.universe)
	if err != nil {
		return summary, fmt.Errorf("equity extraction failed: %w", err)
	}
	derivativeBatches, err := processor.ExtractDerivatives(r.fetcher.StagingDir(nse.KindDerivatives), r.universe)
	if err != nil {
		return summary, fmt.Errorf("derivative extraction failed: %w", err)
	}

	equityFeatures := processor.BuildEquityFeatures(processor.FoldEquity(equityBatches))
	oiFeatures := processor.AggregateOpenInterest(processor.FoldDerivatives(derivativeBatches))
	labeled := processor.LabelGaps(equityFeatures)
	rows := processor.Assemble(labeled, oiFeatures)

	summary.EquityRows = len(equityFeatures)
	summary.OIRows = len(oiFeatures)
	summary.DatasetRows = len(rows)

	if err := r.writer.Write(ctx, rows, outPath); err != nil {
		return summary, fmt.Errorf("failed to persist dataset: %w", err)
	}

	log.WithFields(logger.Fields{
		"fetch_ok":      summary.FetchOK,
		"fetch_no_data": summary.FetchNoData,
		"fetch_failed":  summary.FetchFailed,
		"equity_rows":   summary.EquityRows,
		"oi_rows":       summary.OIRows,
		"dataset_rows":  summary.DatasetRows,
	}).Info("run complete")
	r.log.LogMetric("pipeline", "dataset_rows", float64(summary.DatasetRows), logger.Fields{"run_id": runID})

	return summary, nil
}

// fetchAll drains both archives for every session through a bounded worker
// pool. Distinct date/kind pairs stage disjoint filenames, so workers never
// conflict on the shared staging directory.
func (r *Runner) fetchAll(ctx context.Context, days []time.Time, summary *Summary, log *logger.Entry) {
	jobs := make(chan fetchJob)

	var wg sync.WaitGroup
	for i := 0; i < r.config.Fetcher.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := r.limiter.Wait(ctx); err != nil {
					return
				}
				res := r.fetcher.Fetch(ctx, job.kind, job.day)
				switch res.Status {
				case nse.FetchOK:
					atomic.AddInt64(&summary.FetchOK, 1)
				case nse.FetchNoData:
					atomic.AddInt64(&summary.FetchNoData, 1)
				default:
					atomic.AddInt64(&summary.FetchFailed, 1)
				}
				log.WithFields(logger.Fields{
					"date":   job.day.Format("2006-01-02"),
					"source": job.kind.String(),
					"status": res.Status.String(),
					"reason": res.Reason,
				}).Info("fetch outcome")
			}
		}()
	}

	for _, day := range days {
		for _, kind := range []nse.Kind{nse.KindEquity, nse.KindDerivatives} {
			select {
			case jobs <- fetchJob{day: day, kind: kind}:
			case <-ctx.Done():
				// Stop issuing further date requests; in-flight
				// fetches finish on their own.
				close(jobs)
				wg.Wait()
				return
			}
		}
	}
	close(jobs)
	wg.Wait()
}
