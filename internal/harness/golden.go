package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tabletop/internal/ir"
)

// GoldenDir holds the expected traces, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot renders a trace as canonical JSON lines: a header naming
// the scenario, then one line per step.
func TraceSnapshot(name string, trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	header, err := ir.MarshalCanonical(ir.IRObject{"scenario": ir.IRString(name), "steps": ir.IRInt(len(trace))})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, ev := range trace {
		line, err := ir.MarshalCanonical(ev.IR())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", ev.Step, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts Options) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, opts)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := TraceSnapshot(name, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
