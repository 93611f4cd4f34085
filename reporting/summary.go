package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testmux/testmux/types"
)

func init() {
	registerBuiltin("summary", func(out io.Writer) (Reporter, error) {
		return NewSummaryReporter(out), nil
	})
}

// summaryRow is one terminal test outcome accumulated for the final table.
type summaryRow struct {
	worker   types.WorkerID
	name     string
	status   string
	duration time.Duration
	err      string
}

// SummaryReporter accumulates test outcomes during replay and renders a
// single results table once the run finalizes. Captured output replayed
// between events is not its concern; it only consumes lifecycle events.
type SummaryReporter struct {
	out     io.Writer
	rows    []summaryRow
	passed  int
	failed  int
	pending int
	retries int
}

func NewSummaryReporter(out io.Writer) *SummaryReporter {
	return &SummaryReporter{out: out}
}

func (s *SummaryReporter) HandleEvent(ev types.LifecycleEvent) error {
	switch ev.Kind {
	case types.EventTestPass:
		s.passed++
		s.rows = append(s.rows, s.row(ev, "pass"))
	case types.EventTestFail:
		s.failed++
		s.rows = append(s.rows, s.row(ev, "fail"))
	case types.EventTestPending:
		s.pending++
		s.rows = append(s.rows, s.row(ev, "pending"))
	case types.EventTestFailRetry:
		s.retries++
	case types.EventSuiteStart, types.EventSuiteEnd, types.EventTestStart, types.EventTestEnd:
		// Structural events carry no outcome.
	}
	return nil
}

func (s *SummaryReporter) row(ev types.LifecycleEvent, status string) summaryRow {
	info := types.DecodeTestInfo(ev.Payload)
	name := info.FullTitle
	if name == "" {
		name = info.Title
	}
	if name == "" {
		name = string(ev.Worker)
	}
	return summaryRow{
		worker:   ev.Worker,
		name:     name,
		status:   status,
		duration: time.Duration(info.DurationMS * float64(time.Millisecond)),
		err:      info.Err,
	}
}

func (s *SummaryReporter) Done(failures int) error {
	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.SetTitle("Test Results")

	t.AppendHeader(table.Row{"Worker", "Test", "Duration", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Worker", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Test", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, row := range s.rows {
		t.AppendRow(table.Row{
			string(row.worker),
			row.name,
			formatDuration(row.duration),
			row.status,
		})
	}

	if failures > 0 {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else if s.pending > 0 {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d tests", len(s.rows)),
		"",
		fmt.Sprintf("%d passed, %d failed, %d pending", s.passed, s.failed, s.pending),
	})
	t.Render()

	if s.retries > 0 {
		fmt.Fprintf(s.out, "%d failure(s) retried\n", s.retries)
	}

	// Failure details after the table, with terminal escape codes removed so
	// the output stays readable when piped to a file.
	printed := 0
	for _, row := range s.rows {
		if row.status != "fail" {
			continue
		}
		printed++
		fmt.Fprintf(s.out, "\n%d) %s (%s)\n", printed, row.name, row.worker)
		if row.err != "" {
			fmt.Fprintf(s.out, "   %s\n", stripansi.Strip(row.err))
		}
	}

	_, err := fmt.Fprintf(s.out, "\n%d failing\n", failures)
	return err
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
