// Package nse retrieves daily bhavcopy archives from the exchange's
// historical data host and stages the extracted CSVs for the pipeline.
package nse

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appconfig "gapflow/config"
	"gapflow/logger"
)

// Kind selects which of the two daily archives a fetch targets.
type Kind int

const (
	KindEquity Kind = iota
	KindDerivatives
)

// Segment returns the URL path segment for the kind.
func (k Kind) Segment() string {
	if k == KindDerivatives {
		return "DERIVATIVES"
	}
	return "EQUITIES"
}

// Prefix returns the archive filename prefix for the kind.
func (k Kind) Prefix() string {
	if k == KindDerivatives {
		return "fo"
	}
	return "cm"
}

// Subdir returns the staging subdirectory for the kind.
func (k Kind) Subdir() string {
	if k == KindDerivatives {
		return "fno"
	}
	return "equity"
}

func (k Kind) String() string {
	if k == KindDerivatives {
		return "derivatives"
	}
	return "equity"
}

// FetchStatus distinguishes the three outcomes of an archive retrieval.
// Failure is routine (weekends, holidays, upstream outages), so it is a value
// rather than an error: the pipeline logs the outcome and moves on.
type FetchStatus int

const (
	// FetchOK means the archive was downloaded and staged.
	FetchOK FetchStatus = iota
	// FetchNoData means the host answered but had no archive for the date.
	FetchNoData
	// FetchError means transport or archive handling failed.
	FetchError
)

func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "ok"
	case FetchNoData:
		return "no_data"
	default:
		return "error"
	}
}

// FetchResult reports the outcome of a single archive retrieval. Err is only
// set for FetchError and carries the cause for logging; it is never
// propagated as a run failure.
type FetchResult struct {
	Status FetchStatus
	Reason string
	Files  int
	Err    error
}

// OK reports whether staged files were produced.
func (r FetchResult) OK() bool {
	return r.Status == FetchOK
}

// Fetcher downloads and extracts daily archives. Distinct date/kind pairs
// stage disjoint filenames, so a Fetcher is safe for concurrent use.
type Fetcher struct {
	baseURL     string
	userAgent   string
	stagingRoot string
	client      *http.Client
	log         *logger.Log
}

// NewFetcher builds a fetcher from the source and staging configuration.
func NewFetcher(cfg *appconfig.Config) *Fetcher {
	return &Fetcher{
		baseURL:     strings.TrimRight(cfg.Source.BaseURL, "/"),
		userAgent:   cfg.Source.UserAgent,
		stagingRoot: cfg.Staging.Dir,
		client:      &http.Client{Timeout: cfg.Source.Timeout.Std()},
		log:         logger.GetLogger(),
	}
}

// URL builds the archive location for a date and kind following the fixed
// naming convention, e.g.
// {base}/EQUITIES/2024/JAN/cm01JAN2024bhav.csv.zip.
func (f *Fetcher) URL(k Kind, day time.Time) string {
	dd := day.Format("02")
	mon := strings.ToUpper(day.Format("Jan"))
	year := day.Format("2006")
	return fmt.Sprintf("%s/%s/%s/%s/%s%s%s%sbhav.csv.zip",
		f.baseURL, k.Segment(), year, mon, k.Prefix(), dd, mon, year)
}

// StagingDir returns the extraction directory for the kind.
func (f *Fetcher) StagingDir(k Kind) string {
	return filepath.Join(f.stagingRoot, k.Subdir())
}

// Fetch retrieves the archive for a date and kind and extracts it into the
// staging directory. Re-fetching the same date overwrites the previously
// staged files.
func (f *Fetcher) Fetch(ctx context.Context, k Kind, day time.Time) FetchResult {
	url := f.URL(k, day)
	log := f.log.WithComponent("fetcher").WithFields(logger.Fields{
		"source": k.String(),
		"date":   day.Format("2006-01-02"),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Warn("failed to build archive request")
		logger.RecordFetchFailure()
		return FetchResult{Status: FetchError, Reason: "bad request", Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("archive request failed")
		logger.RecordFetchFailure()
		return FetchResult{Status: FetchError, Reason: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		log.WithFields(logger.Fields{"status_code": resp.StatusCode}).Debug("no archive for date")
		logger.RecordFetchNoData()
		return FetchResult{Status: FetchNoData, Reason: fmt.Sprintf("http %d", resp.StatusCode)}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed to read archive payload")
		logger.RecordFetchFailure()
		return FetchResult{Status: FetchError, Reason: "read failure", Err: err}
	}

	files, err := f.extract(payload, f.StagingDir(k))
	if err != nil {
		log.WithError(err).Warn("failed to extract archive")
		logger.RecordFetchFailure()
		return FetchResult{Status: FetchError, Reason: "malformed archive", Err: err}
	}

	log.WithFields(logger.Fields{"files": files}).Debug("archive staged")
	logger.RecordFetchSuccess(files)
	return FetchResult{Status: FetchOK, Files: files}
}

// extract unpacks every file in the zip payload into dir, flattening any
// directory structure to the base filename.
func (f *Fetcher) extract(payload []byte, dir string) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	count := 0
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(zf.Name)
		if name == "." || name == string(filepath.Separator) {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return count, fmt.Errorf("failed to open archive member %s: %w", zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return count, fmt.Errorf("failed to read archive member %s: %w", zf.Name, err)
		}

		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return count, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		count++
	}

	if count == 0 {
		return 0, fmt.Errorf("archive contained no files")
	}
	return count, nil
}
