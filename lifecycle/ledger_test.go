package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStopDeleteGuards(t *testing.T) {
	var l ReferenceLedger
	assert.True(t, l.CanStop())
	assert.True(t, l.CanDelete())

	l.AddRef("R")
	assert.True(t, l.CanStop(), "inactive reference does not block stop")
	assert.False(t, l.CanDelete())

	require.True(t, l.ActivateRef("R"))
	assert.False(t, l.CanStop())
	assert.False(t, l.CanDelete())

	require.True(t, l.DeactivateRef("R"))
	assert.True(t, l.CanStop())
	assert.False(t, l.CanDelete())

	l.DelRef("R")
	assert.True(t, l.CanDelete())
}

func TestLedgerIdempotentTransitions(t *testing.T) {
	var l ReferenceLedger
	l.AddRef("R")
	l.AddRef("R")
	assert.Len(t, l.Snapshot(), 1, "duplicate AddRef is a no-op")

	l.ActivateRef("R")
	l.ActivateRef("R")
	assert.Equal(t, 1, l.ActiveCount())

	l.DeactivateRef("R")
	l.DeactivateRef("R")
	assert.Equal(t, 0, l.ActiveCount())
}

func TestLedgerUnknownRule(t *testing.T) {
	var l ReferenceLedger
	assert.False(t, l.ActivateRef("ghost"))
	assert.False(t, l.DeactivateRef("ghost"))
	l.DelRef("ghost") // no-op, no panic
}

func TestLedgerDelRefWhileActive(t *testing.T) {
	var l ReferenceLedger
	l.AddRef("A")
	l.AddRef("B")
	l.ActivateRef("A")
	l.ActivateRef("B")

	// Deleting an active reference also releases its active count.
	l.DelRef("A")
	assert.Equal(t, 1, l.ActiveCount())
	refs := l.Snapshot()
	require.Len(t, refs, 1)
	assert.Equal(t, "B", refs[0].RuleID)
	assert.True(t, refs[0].Active)
}

func TestLedgerSnapshotIsCopy(t *testing.T) {
	var l ReferenceLedger
	l.AddRef("R")
	snap := l.Snapshot()
	snap[0].RuleID = "mutated"
	assert.Equal(t, "R", l.Snapshot()[0].RuleID)
}
