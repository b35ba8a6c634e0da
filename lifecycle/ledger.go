package lifecycle

// RefEntry records one rule's dependency on a resource and whether that
// dependency is currently live (the rule is running).
type RefEntry struct {
	RuleID string
	Active bool
}

// ReferenceLedger is the per-resource record of which rules reference it.
// A resource may be deleted only when the ledger is empty and stopped
// only when no entry is active.
//
// The ledger is not safe for concurrent use on its own; a Lifecycle owns
// it and serializes all access.
type ReferenceLedger struct {
	entries   []RefEntry
	activeCnt int
}

// AddRef inserts an entry for the rule with active=false (rule created
// but not yet running). Adding an already-present rule is a no-op.
func (l *ReferenceLedger) AddRef(ruleID string) {
	if l.find(ruleID) >= 0 {
		return
	}
	l.entries = append(l.entries, RefEntry{RuleID: ruleID})
}

// ActivateRef flips the rule's entry to active as the rule starts.
// Returns false if the rule never registered a reference.
func (l *ReferenceLedger) ActivateRef(ruleID string) bool {
	i := l.find(ruleID)
	if i < 0 {
		return false
	}
	if !l.entries[i].Active {
		l.entries[i].Active = true
		l.activeCnt++
	}
	return true
}

// DeactivateRef flips the rule's entry to inactive as the rule stops.
// Returns false if the rule never registered a reference.
func (l *ReferenceLedger) DeactivateRef(ruleID string) bool {
	i := l.find(ruleID)
	if i < 0 {
		return false
	}
	if l.entries[i].Active {
		l.entries[i].Active = false
		l.activeCnt--
	}
	return true
}

// DelRef removes the rule's entry on rule deletion.
func (l *ReferenceLedger) DelRef(ruleID string) {
	i := l.find(ruleID)
	if i < 0 {
		return
	}
	if l.entries[i].Active {
		l.activeCnt--
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
}

// CanStop reports whether no reference is currently active.
func (l *ReferenceLedger) CanStop() bool { return l.activeCnt == 0 }

// CanDelete reports whether the ledger is empty.
func (l *ReferenceLedger) CanDelete() bool { return len(l.entries) == 0 }

// ActiveCount returns the number of live references.
func (l *ReferenceLedger) ActiveCount() int { return l.activeCnt }

// Snapshot returns a point-in-time copy of the ledger entries. Callers
// must not treat the snapshot as transactional; stop/delete re-validate
// inside the Lifecycle at the moment of action.
func (l *ReferenceLedger) Snapshot() []RefEntry {
	out := make([]RefEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *ReferenceLedger) find(ruleID string) int {
	for i, e := range l.entries {
		if e.RuleID == ruleID {
			return i
		}
	}
	return -1
}
