package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	fetchSuccess int64
	fetchNoData  int64
	fetchFailed  int64
	filesStaged  int64
	rowsWritten  int64
	uploadBytes  int64
	warnCounts   sync.Map // map[string]*int64
	errorCounts  sync.Map // map[string]*int64
)

func recordWarn(component string) {
	v, _ := warnCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordError(component string) {
	v, _ := errorCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// RecordFetchSuccess counts an archive fetch that yielded staged files.
func RecordFetchSuccess(files int) {
	atomic.AddInt64(&fetchSuccess, 1)
	atomic.AddInt64(&filesStaged, int64(files))
}

// RecordFetchNoData counts a fetch that returned an expected no-data outcome.
func RecordFetchNoData() {
	atomic.AddInt64(&fetchNoData, 1)
}

// RecordFetchFailure counts a fetch that failed on transport or archive
// handling.
func RecordFetchFailure() {
	atomic.AddInt64(&fetchFailed, 1)
}

// RecordRowsWritten counts dataset rows persisted by the writer.
func RecordRowsWritten(n int) {
	atomic.AddInt64(&rowsWritten, int64(n))
}

// RecordUpload counts bytes shipped to object storage.
func RecordUpload(size int64) {
	atomic.AddInt64(&uploadBytes, size)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	var memUsed, diskUsed uint64
	if memStats != nil {
		memUsed = memStats.Used
	}
	if diskStats != nil {
		diskUsed = diskStats.Used
	}

	warns := map[string]int64{}
	warnCounts.Range(func(k, v any) bool {
		warns[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	errors := map[string]int64{}
	errorCounts.Range(func(k, v any) bool {
		errors[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})

	fields := Fields{
		"fetch_success": atomic.LoadInt64(&fetchSuccess),
		"fetch_no_data": atomic.LoadInt64(&fetchNoData),
		"fetch_failed":  atomic.LoadInt64(&fetchFailed),
		"files_staged":  atomic.LoadInt64(&filesStaged),
		"rows_written":  atomic.LoadInt64(&rowsWritten),
		"upload_bytes":  atomic.LoadInt64(&uploadBytes),
		"warns":         warns,
		"errors":        errors,
		"goroutines":    runtime.NumGoroutine(),
		"cpu_percent":   cpuPct,
		"memory_mb":     int64(memUsed) / 1024 / 1024,
		"disk_mb":       int64(diskUsed) / 1024 / 1024,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("Gapflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("Gapflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memUsed) / 1024 / 1024)},
		{MetricName: aws.String("Gapflow-FetchSuccess"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fetchSuccess)))},
		{MetricName: aws.String("Gapflow-FetchNoData"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fetchNoData)))},
		{MetricName: aws.String("Gapflow-FetchFailed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fetchFailed)))},
		{MetricName: aws.String("Gapflow-FilesStaged"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&filesStaged)))},
		{MetricName: aws.String("Gapflow-RowsWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&rowsWritten)))},
		{MetricName: aws.String("Gapflow-UploadBytes"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(atomic.LoadInt64(&uploadBytes)))},
	}

	publishMetrics(ctx, data)
}
