package events

import (
	"sync"

	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
)

// ErrorStream receives the errors raised by orchestration steps.
type ErrorStream interface {
	Post(err error)
}

// LogErrorStream writes posted errors to a logger.
type LogErrorStream struct {
	lggr logger.Logger
}

// NewLogErrorStream returns an ErrorStream logging at error level.
func NewLogErrorStream(lggr logger.Logger) *LogErrorStream {
	return &LogErrorStream{lggr: lggr.Named("errors")}
}

func (s *LogErrorStream) Post(err error) {
	if err == nil {
		return
	}
	s.lggr.Errorw("Orchestration step failed", "err", err)
}

// ErrorRecorder keeps every posted error in memory and optionally forwards it.
type ErrorRecorder struct {
	next ErrorStream

	mu   sync.Mutex
	errs []error
}

// NewErrorRecorder returns a recorder forwarding to next, which may be nil.
func NewErrorRecorder(next ErrorStream) *ErrorRecorder {
	return &ErrorRecorder{next: next}
}

func (r *ErrorRecorder) Post(err error) {
	if err == nil {
		return
	}

	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()

	if r.next != nil {
		r.next.Post(err)
	}
}

// Errors returns a copy of the recorded errors, oldest first.
func (r *ErrorRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errs...)
}

// Last returns the most recent error, or nil.
func (r *ErrorRecorder) Last() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.errs) == 0 {
		return nil
	}

	return r.errs[len(r.errs)-1]
}
