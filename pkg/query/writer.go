package query

import (
	"bytes"
	"io"
)

// Writer receives rendered SQL text and, in lockstep, the positional
// arguments matching the '?' markers written so far. Routing text and
// arguments through one writer is what keeps the Nth '?' aligned with
// the Nth argument.
type Writer interface {
	io.Writer
	Append(args ...any)
}

type sqlWriter struct {
	bytes.Buffer
	args []any
}

func newWriter() *sqlWriter {
	return &sqlWriter{}
}

func (w *sqlWriter) Append(args ...any) {
	w.args = append(w.args, args...)
}
