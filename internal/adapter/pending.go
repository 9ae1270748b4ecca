package adapter

import (
	"sync"

	"zigbee-ledfx/internal/effects"
)

// Pending is the two-stage result of a command. Accepted is the optimistic
// patch, known as soon as the write went out. Confirmed yields the first
// reported patch that contains one of the written fields.
type Pending struct {
	Key      string
	Accepted effects.Patch

	fields []string
	ch     chan effects.Patch
	once   sync.Once

	release   func()
	confirmed bool // guarded by the owning Light's mutex
}

func newPending(key string, accepted effects.Patch) *Pending {
	fields := accepted.Keys()
	if len(fields) == 0 {
		fields = []string{key}
	}
	return &Pending{
		Key:      key,
		Accepted: accepted,
		fields:   fields,
		ch:       make(chan effects.Patch, 1),
	}
}

// Confirmed returns a channel that receives the confirming patch. It is
// closed without a value when the command's context ends, a newer command
// supersedes it, or Stop is called.
func (p *Pending) Confirmed() <-chan effects.Patch {
	return p.ch
}

// Stop abandons the confirmation.
func (p *Pending) Stop() {
	if p.release != nil {
		p.release()
		return
	}
	p.finish(nil)
}

func (p *Pending) matches(patch effects.Patch) bool {
	for _, f := range p.fields {
		if patch.Has(f) {
			return true
		}
	}
	return false
}

// finish delivers patch (if any) and closes the channel exactly once.
func (p *Pending) finish(patch effects.Patch) {
	p.once.Do(func() {
		if patch != nil {
			p.ch <- patch
		}
		close(p.ch)
	})
}
