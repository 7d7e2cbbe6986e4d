package incremental

import (
	"runtime"
	"sync"
	"weak"
)

// Lineage is the lookup table of IUs created within the network. It holds
// weak pointers only, so grounded-in references never keep IU alive.
// Revoked IUs are removed eagerly, collected ones are removed by cleanup.
// Lineage is safe for concurrent use; nil lineage resolves nothing.
type Lineage struct {
	mu  sync.RWMutex
	ius map[Ref]weak.Pointer[IU]
}

// NewLineage returns empty lineage table.
func NewLineage() *Lineage {
	return &Lineage{
		ius: make(map[Ref]weak.Pointer[IU]),
	}
}

// Resolve returns the IU for provided ref. False is returned if IU was
// revoked, collected or never registered.
func (l *Lineage) Resolve(ref Ref) (*IU, bool) {
	if l == nil {
		return nil, false
	}
	l.mu.RLock()
	p, ok := l.ius[ref]
	l.mu.RUnlock()
	if !ok {
		return nil, false
	}
	iu := p.Value()
	if iu == nil || iu.Revoked() {
		return nil, false
	}
	return iu, true
}

// Grounds resolves direct lineage of the IU. Dangling references are
// skipped.
func (l *Lineage) Grounds(iu *IU) []*IU {
	var grounds []*IU
	for _, ref := range iu.GroundedIn {
		if g, ok := l.Resolve(ref); ok {
			grounds = append(grounds, g)
		}
	}
	return grounds
}

// Len returns number of registered IUs.
func (l *Lineage) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ius)
}

func (l *Lineage) register(iu *IU) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.ius[iu.Ref] = weak.Make(iu)
	l.mu.Unlock()
	runtime.AddCleanup(iu, l.forget, iu.Ref)
}

func (l *Lineage) forget(ref Ref) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.ius, ref)
	l.mu.Unlock()
}
