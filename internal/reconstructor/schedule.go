package reconstructor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
)

// WriteInterestFile flattens an interest spec into the newline-delimited
// event-name list consumed by the native profiler to decide which kernel
// invocations to instrument. Names are deduplicated and keep their order of
// first appearance. This is a one-way export; the reconstructor never reads
// it back.
func WriteInterestFile(w io.Writer, spec *domain.InterestSpec) error {
	for _, name := range spec.EventNames() {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

// ReadInterestFile parses a previously exported interest file back into the
// flat event-name list, preserving order and skipping blank lines.
func ReadInterestFile(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// WriteSchedule emits a profiling schedule: the warmup iteration count on the
// first line, then one line per repeated measurement in the form
//
//	<event> <iteration> <layer> <occurrence>
//
// The native profiler measures exactly one scheduled event per iteration, so
// the iteration counter starts right after warmup and advances by one per
// line. Within a layer, forward events are scheduled before backward events;
// layers follow their declaration order.
func WriteSchedule(w io.Writer, spec *domain.InterestSpec, repeat int, warmupIterations int) error {
	if _, err := fmt.Fprintf(w, "%d", warmupIterations); err != nil {
		return err
	}

	iteration := warmupIterations + 1
	schedule := func(event string, layer string, occurrence int) error {
		for i := 0; i < repeat; i++ {
			if _, err := fmt.Fprintf(w, "\n%s %d %s %d", event, iteration, layer, occurrence); err != nil {
				return err
			}
			iteration++
		}
		return nil
	}

	for _, layer := range spec.Layers {
		for _, event := range layer.ForwardEvents {
			if err := schedule(event, layer.Name, layer.ForwardOccurrence); err != nil {
				return err
			}
		}
		for _, event := range layer.BackwardEvents {
			if err := schedule(event, layer.Name, layer.BackwardOccurrence); err != nil {
				return err
			}
		}
	}

	return nil
}

// WriteInterestFileTo and WriteScheduleTo are path-based conveniences for the
// CLI.
func WriteInterestFileTo(path string, spec *domain.InterestSpec) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteInterestFile(f, spec)
}

func WriteScheduleTo(path string, spec *domain.InterestSpec, repeat int, warmupIterations int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteSchedule(f, spec, repeat, warmupIterations)
}
