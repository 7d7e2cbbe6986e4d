// Package text provides modules that process incremental text
// hypotheses, like partial transcriptions of speech.
package text

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"pipelined.dev/incremental"
)

// Type is the IU type of text modules. Payload is a string.
const Type incremental.Type = "text"

// payload returns text of the IU.
func payload(iu *incremental.IU) string {
	switch v := iu.Payload().(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(iu.Payload())
}

// Uppercase converts every input IU into uppercase. Output is re-derived
// from current input on every round, so revoked input revokes only the
// diverged tail of the output. Output grounded in committed input is
// committed. Buffers are reset once every input and output IU is final.
type Uppercase struct {
	*incremental.Base
	caser cases.Caser
}

// NewUppercase returns uppercase module for provided language tag.
func NewUppercase(name string, tag language.Tag) *Uppercase {
	u := Uppercase{
		Base:  incremental.NewBase(name, Type, Type),
		caser: cases.Upper(tag),
	}
	u.SetResetPolicy(incremental.ResetOnCommit)
	return &u
}

// ProcessUpdate implements incremental.Module.
func (u *Uppercase) ProcessUpdate(in incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	inputs := u.Inputs()
	next := make([]incremental.Derivation, 0, len(inputs))
	for _, iu := range inputs {
		next = append(next, incremental.Derivation{
			Payload:    u.caser.String(payload(iu)),
			GroundedIn: []*incremental.IU{iu},
		})
	}
	out, err := u.Rederive(next)
	if err != nil {
		return incremental.UpdateMessage{}, err
	}
	for _, iu := range in.Of(incremental.Commit) {
		if _, err := u.CommitGrounded(&out, iu.Ref); err != nil {
			return incremental.UpdateMessage{}, err
		}
	}
	if u.InputFinal() && final(u.Output()) {
		u.Reset()
	}
	return out, nil
}

// WordMap substitutes words of input IUs. It never changes upstream IUs:
// every input IU gets its own output IU grounded in it, revoked and
// committed along with it. Words are matched case-insensitively.
type WordMap struct {
	*incremental.Base
	words   map[string]string
	fold    cases.Caser
	derived map[incremental.Ref]*incremental.IU
}

// NewWordMap returns module that substitutes words with provided
// replacements.
func NewWordMap(name string, words map[string]string) *WordMap {
	w := WordMap{
		Base:    incremental.NewBase(name, Type, Type),
		words:   make(map[string]string, len(words)),
		fold:    cases.Fold(),
		derived: make(map[incremental.Ref]*incremental.IU),
	}
	for from, to := range words {
		w.words[w.key(from)] = to
	}
	w.SetResetPolicy(incremental.ResetOnCommit)
	return &w
}

func (w *WordMap) key(word string) string {
	return w.fold.String(norm.NFC.String(word))
}

// Replace returns text with substituted words.
func (w *WordMap) Replace(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if to, ok := w.words[w.key(f)]; ok {
			fields[i] = to
		}
	}
	return strings.Join(fields, " ")
}

// ProcessUpdate implements incremental.Module.
func (w *WordMap) ProcessUpdate(in incremental.UpdateMessage) (incremental.UpdateMessage, error) {
	var out incremental.UpdateMessage
	for _, u := range in.Updates {
		switch u.Type {
		case incremental.Add:
			w.derived[u.IU.Ref] = w.AddIU(&out, w.Replace(payload(u.IU)), u.IU)
		case incremental.Revoke:
			iu, ok := w.derived[u.IU.Ref]
			if !ok {
				continue
			}
			delete(w.derived, u.IU.Ref)
			if err := w.RevokeIU(&out, iu); err != nil {
				return incremental.UpdateMessage{}, err
			}
		case incremental.Commit:
			iu, ok := w.derived[u.IU.Ref]
			if !ok {
				continue
			}
			delete(w.derived, u.IU.Ref)
			if err := w.CommitIU(&out, iu); err != nil {
				return incremental.UpdateMessage{}, err
			}
		}
	}
	if len(w.derived) == 0 {
		w.Reset()
	}
	return out, nil
}

func final(ius []*incremental.IU) bool {
	for _, iu := range ius {
		if !iu.Committed() {
			return false
		}
	}
	return true
}
