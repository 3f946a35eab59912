// Command reconstruct is the one-shot profiling analysis CLI: it discovers
// the per-process logs written by the native profiler, reconstructs labeled
// timelines, and writes JSON/CSV reports. It can also emit the interest and
// schedule files that configure the native instrumentation layer for the
// next profiling run.
package main

import (
	"fmt"
	"os"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/reconstructor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	opts := domain.GetDefaultConfig()
	opts.CheckUsage()

	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Debug || opts.Verbose {
		atom.SetLevel(zapcore.DebugLevel)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), os.Stdout, atom)
	logger := zap.New(core, zap.Development())

	spec, err := loadSpec(opts)
	if err != nil {
		logger.Fatal("Failed to load interest spec.", zap.Error(err))
	}

	for _, warning := range spec.Validate() {
		logger.Warn("Ambiguous interest spec.", zap.String("overlap", warning))
	}

	if opts.InterestFileOutput != "" {
		if err := reconstructor.WriteInterestFileTo(opts.InterestFileOutput, spec); err != nil {
			logger.Fatal("Failed to write interest file.", zap.String("path", opts.InterestFileOutput), zap.Error(err))
		}
		logger.Info("Wrote interest file.", zap.String("path", opts.InterestFileOutput))
	}

	if opts.ScheduleOutput != "" {
		if err := reconstructor.WriteScheduleTo(opts.ScheduleOutput, spec, opts.ScheduleRepeat, opts.WarmupIterations); err != nil {
			logger.Fatal("Failed to write schedule file.", zap.String("path", opts.ScheduleOutput), zap.Error(err))
		}
		logger.Info("Wrote schedule file.", zap.String("path", opts.ScheduleOutput),
			zap.Int("repeat", opts.ScheduleRepeat), zap.Int("warmup-iterations", opts.WarmupIterations))
	}

	if opts.LogDir == "" {
		// Nothing to analyze; emitting instrumentation files is a valid
		// standalone use.
		if opts.InterestFileOutput == "" && opts.ScheduleOutput == "" {
			fmt.Fprintln(os.Stderr, "Nothing to do: specify -log-dir, -interest-output, or -schedule-output. See -h.")
			os.Exit(2)
		}
		return
	}

	recon := reconstructor.New(opts, &atom)
	timelines, failures, err := recon.ReconstructDirectory(opts.LogDir, spec, nil)
	if err != nil {
		logger.Fatal("Reconstruction failed.", zap.String("log-dir", opts.LogDir), zap.Error(err))
	}
	for _, failure := range failures {
		logger.Warn("Profiling log was skipped.", zap.Error(failure))
	}

	if err := writeOutputs(opts, timelines); err != nil {
		logger.Fatal("Failed to write reconstruction output.", zap.Error(err))
	}

	logger.Info("Reconstruction complete.",
		zap.Int("timelines", len(timelines)), zap.Int("skipped-files", len(failures)))
}

func loadSpec(opts *domain.Configuration) (*domain.InterestSpec, error) {
	if opts.InterestSpecFile == "" {
		return domain.DLRMInterestSpec(), nil
	}
	return domain.LoadInterestSpec(opts.InterestSpecFile)
}

func writeOutputs(opts *domain.Configuration, timelines []*domain.RunTimeline) error {
	if opts.CSVOutput != "" {
		if err := reconstructor.WriteCSVTo(opts.CSVOutput, timelines); err != nil {
			return err
		}
	}

	if opts.Output == "" {
		return nil
	}

	out := os.Stdout
	if opts.Output != "-" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if opts.LayerView {
		views := make([]*domain.LayerTimeline, 0, len(timelines))
		for _, timeline := range timelines {
			views = append(views, reconstructor.LayerView(timeline))
		}
		return reconstructor.WriteLayerJSON(out, views)
	}

	return reconstructor.WriteJSON(out, timelines)
}
