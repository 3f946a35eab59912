package reconstructor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/pkg/statistics"
	"go.uber.org/zap"
)

// rawProfile mirrors the on-disk log format with pointer fields so that a
// missing required key can be told apart from a present-but-empty one.
type rawProfile struct {
	HostName   *string             `json:"host_name"`
	IterTimeMs *[]float64          `json:"iter_time_ms"`
	Events     *[]*domain.RawEvent `json:"events"`
}

// LoadRuns discovers every profiling log under dir (matched by the
// configured filename suffix), parses each into a ProfileRun, and aggregates
// per-event and per-run statistics. A malformed file yields one error
// wrapping domain.ErrMalformedLog and does not stop processing of its
// siblings. onFile, when non-nil, is invoked once per discovered file after
// it has been processed; the server uses it to push job progress.
func (r *Reconstructor) LoadRuns(dir string, onFile func(path string, err error)) ([]*domain.ProfileRun, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read log directory \"%s\": %w", dir, err)}
	}

	var (
		runs     []*domain.ProfileRun
		failures []error
	)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), r.logSuffix) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		run, err := r.loadRun(path)
		if err != nil {
			r.logger.Warn("Skipping profiling log.", zap.String("path", path), zap.Error(err))
			failures = append(failures, err)
		} else {
			runs = append(runs, run)
		}

		if onFile != nil {
			onFile(path, err)
		}
	}

	r.logger.Debug("Loaded profiling logs.",
		zap.String("dir", dir), zap.Int("runs", len(runs)), zap.Int("failures", len(failures)))

	return runs, failures
}

func (r *Reconstructor) loadRun(path string) (*domain.ProfileRun, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: \"%s\": %v", domain.ErrMalformedLog, path, err)
	}

	var raw rawProfile
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: \"%s\": %v", domain.ErrMalformedLog, path, err)
	}

	required := []struct {
		key     string
		present bool
	}{
		{"host_name", raw.HostName != nil},
		{"iter_time_ms", raw.IterTimeMs != nil},
		{"events", raw.Events != nil},
	}
	for _, field := range required {
		if !field.present {
			return nil, fmt.Errorf("%w: \"%s\": missing required key \"%s\"", domain.ErrMalformedLog, path, field.key)
		}
	}

	run := &domain.ProfileRun{
		HostName:   *raw.HostName,
		IterTimeMs: *raw.IterTimeMs,
		Events:     *raw.Events,
		SourcePath: path,
	}

	r.aggregate(run)
	return run, nil
}

// aggregate orders a run's events by their registration index and computes
// the derived means. Events keep their file order on equal start indices.
func (r *Reconstructor) aggregate(run *domain.ProfileRun) {
	sort.SliceStable(run.Events, func(i, j int) bool {
		return run.Events[i].StartIndex < run.Events[j].StartIndex
	})

	run.AvgIterTimeMs = r.mean(run, "iter_time_ms", run.IterTimeMs)

	for _, event := range run.Events {
		event.AvgMeasuredTimeMs = r.mean(run, event.Name+".measured_times_ms", event.MeasuredTimesMs)
		event.AvgIterStartToEventStartTimeMs = r.mean(run, event.Name+".iter_start_to_event_start_times_ms", event.IterStartToEventStartTimesMs)
	}
}

// mean averages samples, optionally dropping outliers first. An empty
// sequence (whether empty in the log or emptied by outlier rejection) is
// recorded as a run warning and yields an undefined average instead of
// failing the run.
func (r *Reconstructor) mean(run *domain.ProfileRun, what string, samples []float64) domain.Average {
	kept := statistics.RejectOutliers(samples, r.outlierStdDevs)

	if len(kept) == 0 {
		warning := fmt.Errorf("%w: %s in \"%s\"", domain.ErrEmptySamples, what, run.SourcePath)
		run.Warnings = append(run.Warnings, warning)
		r.logger.Warn("Statistic is undefined.", zap.String("source", run.SourcePath), zap.String("samples", what))
		return domain.UndefinedAverage()
	}

	return domain.Average(statistics.Mean(kept))
}
