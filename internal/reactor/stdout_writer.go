package reactor

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Sink is the full set of engine output interfaces.
type Sink interface {
	TelemetryWriter
	LogWriter
	StateWriter
	ReactionWriter
}

// NewStdoutWriter returns a colour writer when out is a terminal and a
// JSON line writer otherwise.
func NewStdoutWriter(out io.Writer, ov *Overview) Sink {
	if isTerminal(out) {
		w := NewColorStdoutWriter(ov)
		w.out = out
		return w
	}
	w := NewJSONStdoutWriter()
	w.out = out
	return w
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
