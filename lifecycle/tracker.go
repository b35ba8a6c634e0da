package lifecycle

// ErrorTracker debounces error-state transitions for one resource. Field
// devices commonly fail with the same error every polling cycle; the
// tracker keeps that from flapping resource status while still surfacing
// the latest error text.
//
// The tracker is not safe for concurrent use on its own. It is owned by
// a Lifecycle, which serializes access, or by a single resource task.
type ErrorTracker struct {
	lastErr string
	inErr   bool
}

// PutErr records a new error observation. The first return value reports
// whether the visible error text changed; the second reports whether the
// resource just crossed the Healthy->Error edge. Repeating the same error
// yields (false, false); a different error while already failed yields
// (true, false).
func (t *ErrorTracker) PutErr(text string) (updateText, flipStatus bool) {
	if !t.inErr {
		t.inErr = true
		t.lastErr = text
		return true, true
	}
	if t.lastErr != text {
		t.lastErr = text
		return true, false
	}
	return false, false
}

// PutOK records a successful observation. Reports whether the visible
// error text should be cleared and whether the resource just crossed the
// Error->Healthy edge; both are false when already healthy.
func (t *ErrorTracker) PutOK() (clearText, flipStatus bool) {
	if !t.inErr {
		return false, false
	}
	t.inErr = false
	t.lastErr = ""
	return true, true
}

// InError reports whether the last observation was an error.
func (t *ErrorTracker) InError() bool { return t.inErr }

// LastErr returns the most recent error text, empty when healthy.
func (t *ErrorTracker) LastErr() string { return t.lastErr }
