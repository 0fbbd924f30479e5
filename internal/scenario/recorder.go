package scenario

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrSkipped is returned by a scenario that chose not to run.
var ErrSkipped = errors.New("scenario skipped")

// T collects the outcome of one scenario execution. It satisfies testify's
// assert.TestingT, so scenarios check state with the assert package.
type T struct {
	mu       sync.Mutex
	failures []string
	notes    []string
	artifact string
	degraded bool
}

// NewT returns an empty recorder.
func NewT() *T { return &T{} }

// Errorf records a failed assertion.
func (t *T) Errorf(format string, args ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, msg)
}

// Helper is a no-op kept for testify.
func (t *T) Helper() {}

// Failed reports whether any assertion failed.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures) > 0
}

// Failures returns the recorded assertion messages.
func (t *T) Failures() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.failures...)
}

// Notef attaches an observation to the result without failing it.
func (t *T) Notef(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notes = append(t.notes, fmt.Sprintf(format, args...))
}

func (t *T) Notes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.notes...)
}

// SetArtifact keeps the generated embed code for the report.
func (t *T) SetArtifact(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.artifact = code
}

func (t *T) Artifact() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.artifact
}

// MarkDegraded flags a check that ran with reduced coverage.
func (t *T) MarkDegraded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.degraded = true
}

func (t *T) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.degraded
}

// Skip returns an error that marks the scenario skipped with reason.
func (t *T) Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}
