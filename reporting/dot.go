package reporting

import (
	"fmt"
	"io"

	"github.com/testmux/testmux/types"
)

const dotsPerLine = 64

func init() {
	registerBuiltin("dot", func(out io.Writer) (Reporter, error) {
		return &DotReporter{out: out}, nil
	})
}

// DotReporter prints one glyph per test outcome: '.' pass, '!' fail,
// ',' pending, 'r' for a failure that will be retried.
type DotReporter struct {
	out     io.Writer
	written int
}

func (d *DotReporter) HandleEvent(ev types.LifecycleEvent) error {
	var glyph string
	switch ev.Kind {
	case types.EventTestPass:
		glyph = "."
	case types.EventTestFail:
		glyph = "!"
	case types.EventTestPending:
		glyph = ","
	case types.EventTestFailRetry:
		glyph = "r"
	case types.EventSuiteStart, types.EventSuiteEnd, types.EventTestStart, types.EventTestEnd:
		return nil
	default:
		return nil
	}

	if d.written > 0 && d.written%dotsPerLine == 0 {
		if _, err := io.WriteString(d.out, "\n"); err != nil {
			return err
		}
	}
	d.written++
	_, err := io.WriteString(d.out, glyph)
	return err
}

func (d *DotReporter) Done(failures int) error {
	_, err := fmt.Fprintf(d.out, "\n%d failing\n", failures)
	return err
}
