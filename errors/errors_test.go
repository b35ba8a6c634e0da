package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFormat(t *testing.T) {
	err := Wrap(ErrNotFound, "Gateway", "StartSource", "source lookup")
	require.Error(t, err)
	assert.Equal(t, "Gateway.StartSource: source lookup failed: resource not found", err.Error())
	assert.True(t, Is(err, ErrNotFound))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassification(t *testing.T) {
	invalid := WrapInvalid(fmt.Errorf("bad regex"), "FilterRegistry", "New", "pattern compile")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsTransient(invalid))

	transient := WrapTransient(ErrConnectionLost, "MQTTSink", "Write", "publish")
	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))

	var ce *ClassifiedError
	require.True(t, As(transient, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "MQTTSink", ce.Component)
}

func TestIsLifecycle(t *testing.T) {
	for _, err := range []error{ErrAlreadyRunning, ErrAlreadyStopped, ErrBusy, ErrReferencedByRule} {
		assert.True(t, IsLifecycle(Wrap(err, "Rule", "Start", "state check")), err.Error())
	}
	assert.False(t, IsLifecycle(ErrNotFound))
	assert.False(t, IsLifecycle(nil))
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsInvalid(ErrDecode))
	assert.True(t, IsInvalid(ErrEncode))
	assert.True(t, IsInvalid(ErrInvalidConfig))
	assert.True(t, IsTransient(ErrNoConnection))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsTransient(nil))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
