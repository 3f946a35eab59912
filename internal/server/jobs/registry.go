// Package jobs manages asynchronous reconstruction jobs submitted through
// the dashboard backend. Each job runs one directory reconstruction in its
// own goroutine and publishes per-file progress to websocket subscribers.
package jobs

import (
	"fmt"
	"os"
	"time"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/reconstructor"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Registry struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger
	atom          *zap.AtomicLevel

	jobs          cmap.ConcurrentMap[string, *ReconstructionJob]
	reconstructor *reconstructor.Reconstructor
}

func NewRegistry(opts *domain.Configuration, atom *zap.AtomicLevel) *Registry {
	registry := &Registry{
		atom:          atom,
		jobs:          cmap.New[*ReconstructionJob](),
		reconstructor: reconstructor.New(opts, atom),
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), os.Stdout, atom)
	registry.logger = zap.New(core, zap.Development())
	registry.sugaredLogger = registry.logger.Sugar()

	return registry
}

// Submit validates the request, registers a new job, and starts the
// reconstruction asynchronously. The returned job is already visible through
// Get and over the websocket endpoint.
func (r *Registry) Submit(logDir string, spec *domain.InterestSpec) (*ReconstructionJob, error) {
	if spec == nil || len(spec.Layers) == 0 {
		return nil, domain.ErrNoInterestSpec
	}

	info, err := os.Stat(logDir)
	if err != nil {
		return nil, fmt.Errorf("cannot access log directory \"%s\": %w", logDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("log path \"%s\" is not a directory", logDir)
	}

	job := newJob(uuid.NewString(), logDir)
	r.jobs.Set(job.ID, job)

	r.logger.Debug("Submitted reconstruction job.",
		zap.String("job_id", job.ID), zap.String("log_dir", logDir))

	go r.run(job, spec)

	return job, nil
}

func (r *Registry) Get(id string) (*ReconstructionJob, error) {
	job, ok := r.jobs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: \"%s\"", domain.ErrUnknownJob, id)
	}
	return job, nil
}

func (r *Registry) run(job *ReconstructionJob, spec *domain.InterestSpec) {
	job.setStatus(JobRunning)

	onFile := func(path string, err error) {
		progress := JobProgress{JobID: job.ID, Status: JobRunning, File: path}
		if err != nil {
			progress.Error = err.Error()
		}
		job.publish(progress)
	}

	timelines, failures, err := r.reconstructor.ReconstructDirectory(job.LogDir, spec, onFile)

	job.Timelines = timelines
	for _, failure := range failures {
		job.Failures = append(job.Failures, failure.Error())
	}
	job.CompletedAt = time.Now()

	if err != nil {
		job.Err = err.Error()
		r.logger.Error("Reconstruction job failed.", zap.String("job_id", job.ID), zap.Error(err))
		job.setStatus(JobErred)
		return
	}

	r.logger.Debug("Reconstruction job finished.",
		zap.String("job_id", job.ID), zap.Int("timelines", len(timelines)), zap.Int("failures", len(failures)))
	job.setStatus(JobComplete)
}
