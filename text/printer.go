package text

import (
	"fmt"
	"io"
	"strings"

	"pipelined.dev/incremental"
)

// Printer prints current text hypothesis on every round. Once all input
// is committed, the final line is printed and buffers are reset.
type Printer struct {
	*incremental.Base
	w io.Writer
}

// NewPrinter returns printer that writes into provided writer.
func NewPrinter(name string, w io.Writer) *Printer {
	p := Printer{
		Base: incremental.NewBase(name, Type, Type),
		w:    w,
	}
	p.SetResetPolicy(incremental.ResetOnCommit)
	return &p
}

// ProcessUpdate implements incremental.Module.
func (p *Printer) ProcessUpdate(incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	inputs := p.Inputs()
	words := make([]string, 0, len(inputs))
	for _, iu := range inputs {
		words = append(words, payload(iu))
	}
	line := strings.Join(words, " ")
	prefix := "partial"
	if p.InputFinal() {
		prefix = "final"
		p.Reset()
	}

	if _, err := fmt.Fprintf(p.w, "%s: %s\n", prefix, line); err != nil {
		return incremental.UpdateMessage{}, err
	}
	p.Logger().WithField("final", prefix == "final").Debug(line)
	return incremental.UpdateMessage{}, nil
}
