package domain

import "errors"

var (
	// ErrMalformedLog indicates that a discovered profiling log could not be
	// parsed as JSON or was missing one of the required top-level keys
	// (host_name, iter_time_ms, events). The offending file is skipped;
	// sibling files in the same directory are unaffected.
	ErrMalformedLog = errors.New("malformed profiling log")

	// ErrEmptySamples indicates that a sample sequence was empty when a mean
	// was requested. The affected statistic is reported as undefined rather
	// than aborting the run.
	ErrEmptySamples = errors.New("empty sample sequence")

	// ErrNoInterestSpec is returned when a reconstruction is requested
	// without any interest specification to label events against.
	ErrNoInterestSpec = errors.New("no interest specification provided")

	// ErrUnknownJob is returned by the server's job registry for job IDs
	// that were never submitted.
	ErrUnknownJob = errors.New("unknown reconstruction job")

	// ErrJobNotFinished is returned when a result export is requested for a
	// job that is still pending or running.
	ErrJobNotFinished = errors.New("reconstruction job has not finished")
)
