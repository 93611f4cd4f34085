package reporting

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/testmux/testmux/types"
)

const templateExt = ".tmpl"

// templateFactory loads a text/template reporter from a file path relative
// to the working directory. The template is executed once per replayed event
// with a TemplateEvent; if it defines a "summary" block, that block is
// executed once at finalization with a TemplateSummary.
func templateFactory(path string) Factory {
	return func(out io.Writer) (Reporter, error) {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read reporter template %s: %w", path, err)
		}
		tmpl, err := template.New("reporter").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse reporter template %s: %w", path, err)
		}
		return &TemplateReporter{tmpl: tmpl, out: out}, nil
	}
}

// TemplateEvent is the data passed to the template for each event.
type TemplateEvent struct {
	Worker string
	Kind   string
	Seq    uint64
	Test   types.TestInfo
}

// TemplateSummary is the data passed to the optional "summary" block.
type TemplateSummary struct {
	Failures int
}

// TemplateReporter renders events through a user-supplied text/template.
type TemplateReporter struct {
	tmpl *template.Template
	out  io.Writer
}

func (t *TemplateReporter) HandleEvent(ev types.LifecycleEvent) error {
	return t.tmpl.Execute(t.out, TemplateEvent{
		Worker: string(ev.Worker),
		Kind:   string(ev.Kind),
		Seq:    ev.Seq,
		Test:   types.DecodeTestInfo(ev.Payload),
	})
}

func (t *TemplateReporter) Done(failures int) error {
	summary := t.tmpl.Lookup("summary")
	if summary == nil {
		return nil
	}
	return summary.Execute(t.out, TemplateSummary{Failures: failures})
}
