package kit

import (
	"tiendapos/internal/cart"
	"tiendapos/internal/domain"
)

// PendingSelection is a trigger line still owed gifts.
type PendingSelection struct {
	Kit      domain.KitDefinition `json:"kit"`
	Trigger  cart.Line            `json:"trigger"`
	Provided int                  `json:"provided"`
}

func (p PendingSelection) Needed() int {
	return p.Kit.MaxSelections * p.Trigger.Quantity
}

func (p PendingSelection) Remaining() int {
	if r := p.Needed() - p.Provided; r > 0 {
		return r
	}
	return 0
}

// Queue is an immutable FIFO of pending selections. Every operation returns
// a new value.
type Queue struct {
	entries []PendingSelection
}

func NewQueue(entries ...PendingSelection) Queue {
	return Queue{entries: append([]PendingSelection(nil), entries...)}
}

func (q Queue) Len() int {
	return len(q.entries)
}

func (q Queue) Head() (PendingSelection, bool) {
	if len(q.entries) == 0 {
		return PendingSelection{}, false
	}
	return q.entries[0], true
}

func (q Queue) Push(p PendingSelection) Queue {
	next := make([]PendingSelection, len(q.entries), len(q.entries)+1)
	copy(next, q.entries)
	return Queue{entries: append(next, p)}
}

func (q Queue) Pop() Queue {
	if len(q.entries) <= 1 {
		return Queue{}
	}
	next := make([]PendingSelection, len(q.entries)-1)
	copy(next, q.entries[1:])
	return Queue{entries: next}
}

func (q Queue) Entries() []PendingSelection {
	out := make([]PendingSelection, len(q.entries))
	copy(out, q.entries)
	return out
}
