package incremental

import "errors"

var errNilIU = errors.New("update carries no iu")

// Output returns current output of the module: added and not revoked IUs
// in order.
func (b *Base) Output() []*IU {
	out := make([]*IU, len(b.out))
	copy(out, b.out)
	return out
}

// Input returns current input received from provided producer.
func (b *Base) Input(producer string) []*IU {
	buf, ok := b.in[producer]
	if !ok {
		return nil
	}
	ius := make([]*IU, 0, len(buf.entries))
	for _, e := range buf.entries {
		ius = append(ius, e.iu)
	}
	return ius
}

// Inputs returns current input of all producers. Producers are ordered by
// their first message, IUs of every producer keep arrival order.
func (b *Base) Inputs() []*IU {
	var ius []*IU
	for _, p := range b.producers {
		ius = append(ius, b.Input(p)...)
	}
	return ius
}

// Final returns true if IU was committed by the producer.
func (b *Base) Final(producer string, ref Ref) bool {
	buf, ok := b.in[producer]
	if !ok {
		return false
	}
	if i := buf.index(ref); i >= 0 {
		return buf.entries[i].final
	}
	return false
}

// InputFinal returns true if current input isn't empty and all of it was
// committed.
func (b *Base) InputFinal() bool {
	var n int
	for _, buf := range b.in {
		for _, e := range buf.entries {
			if !e.final {
				return false
			}
			n++
		}
	}
	return n > 0
}

// apply updates the current input with incoming message. Returned errors
// are recoverable inconsistencies, every update is still applied.
func (b *Base) apply(m UpdateMessage) []error {
	buf, ok := b.in[m.Producer]
	if !ok {
		buf = &inputBuffer{}
		b.in[m.Producer] = buf
		b.producers = append(b.producers, m.Producer)
	}
	var errs []error
	for _, u := range m.Updates {
		if u.IU == nil {
			errs = append(errs, newError(ErrUnknownIU, b, PhaseReceive, Ref{}, errNilIU))
			continue
		}
		var err error
		switch u.Type {
		case Add:
			err = buf.add(u.IU)
		case Revoke:
			err = buf.revoke(u.IU)
		case Commit:
			err = buf.commit(u.IU)
		}
		if err != nil {
			errs = append(errs, newError(err, b, PhaseReceive, u.IU.Ref, nil))
		}
	}
	return errs
}

// Rederive replaces current output with provided derivations. Two IUs are
// the same if they are grounded in the same IUs, payload is not compared.
// Committed output is fixed: derivations of committed IUs are matched
// wherever they are and skipped. The longest common prefix of remaining
// output and derivations is kept. Everything after divergence point is
// revoked, newest first, and then new continuation is added. If committed
// IU has no derivation, an error is returned and buffer is left untouched.
func (b *Base) Rederive(next []Derivation) (UpdateMessage, error) {
	var committed, live []*IU
	for _, iu := range b.out {
		if iu.Committed() {
			committed = append(committed, iu)
		} else {
			live = append(live, iu)
		}
	}
	derived := make([]bool, len(committed))
	pending := make([]Derivation, 0, len(next))
	for _, d := range next {
		if i := indexGrounded(committed, derived, refs(d.GroundedIn)); i >= 0 {
			derived[i] = true
			continue
		}
		pending = append(pending, d)
	}
	for i, ok := range derived {
		if !ok {
			return UpdateMessage{}, newError(ErrAlreadyCommitted, b, PhaseProcess, committed[i].Ref, nil)
		}
	}

	var k int
	for k < len(live) && k < len(pending) && sameRefs(live[k].GroundedIn, refs(pending[k].GroundedIn)) {
		k++
	}
	var m UpdateMessage
	for i := len(live) - 1; i >= k; i-- {
		if err := b.RevokeIU(&m, live[i]); err != nil {
			return m, newError(err, b, PhaseProcess, live[i].Ref, nil)
		}
	}
	for _, d := range pending[k:] {
		b.AddIU(&m, d.Payload, d.GroundedIn...)
	}
	return m, nil
}

// indexGrounded returns index of the first IU not yet matched that is
// grounded in provided refs.
func indexGrounded(ius []*IU, matched []bool, grounds []Ref) int {
	for i, iu := range ius {
		if !matched[i] && sameRefs(iu.GroundedIn, grounds) {
			return i
		}
	}
	return -1
}

func (buf *inputBuffer) index(ref Ref) int {
	for i := range buf.entries {
		if buf.entries[i].iu.Ref == ref {
			return i
		}
	}
	return -1
}

func (buf *inputBuffer) add(iu *IU) error {
	if buf.index(iu.Ref) >= 0 {
		return ErrDuplicateIU
	}
	buf.entries = append(buf.entries, inputEntry{iu: iu})
	return nil
}

func (buf *inputBuffer) revoke(iu *IU) error {
	i := buf.index(iu.Ref)
	if i < 0 {
		return ErrUnknownIU
	}
	buf.entries = append(buf.entries[:i], buf.entries[i+1:]...)
	return nil
}

func (buf *inputBuffer) commit(iu *IU) error {
	i := buf.index(iu.Ref)
	if i < 0 {
		return ErrUnknownIU
	}
	buf.entries[i].final = true
	return nil
}
