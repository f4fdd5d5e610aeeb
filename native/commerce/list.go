package commerce

import (
	"ecomledger/crypto"
)

// RefList is a capped, append-only sequence of record addresses. A failed
// append leaves the list untouched.
type RefList struct {
	Refs []crypto.Handle
}

// Append adds ref when the list has room and does not already contain it.
func (l *RefList) Append(ref crypto.Handle) error {
	if l.Contains(ref) {
		return wrap(ErrInvalidArgument, "reference %s already listed", ref)
	}
	if len(l.Refs) >= MaxListLen {
		return wrap(ErrListFull, "list holds %d references", len(l.Refs))
	}
	l.Refs = append(l.Refs, ref)
	return nil
}

func (l *RefList) Contains(ref crypto.Handle) bool {
	for _, existing := range l.Refs {
		if existing == ref {
			return true
		}
	}
	return false
}

func (l *RefList) Len() int { return len(l.Refs) }

// List returns a copy of the references in append order.
func (l *RefList) List() []crypto.Handle {
	return append([]crypto.Handle(nil), l.Refs...)
}

func (l RefList) Clone() RefList {
	return RefList{Refs: append([]crypto.Handle(nil), l.Refs...)}
}
