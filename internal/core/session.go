package core

import (
	"sync"
	"time"
)

// listenerBuffer is the channel capacity given to each progress subscriber.
const listenerBuffer = 10

// Session tracks one import run: running until every row is processed, then
// success (no row errors) or error. A structural failure aborts it straight
// to error. All methods are safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	progress   ImportProgress
	errors     []ImportError
	structural string
	startedAt  time.Time
	result     *ImportResult
	listeners  []chan ImportProgress
	onChange   ProgressCallback
	done       chan struct{}
}

// NewSession creates a running session with no rows yet.
func NewSession(id, fileName string) *Session {
	return &Session{
		progress: ImportProgress{
			ImportID: id,
			FileName: fileName,
			Status:   StatusRunning,
		},
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.progress.ImportID
}

// OnChange registers a callback invoked with every snapshot.
func (s *Session) OnChange(fn ProgressCallback) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Begin fixes the mode and the total row count.
func (s *Session) Begin(mode ImportMode, total int) {
	s.mu.Lock()
	s.progress.Mode = mode
	s.progress.Total = total
	notify := s.notifyLocked()
	s.mu.Unlock()

	notify()
}

// Advance counts one processed row.
func (s *Session) Advance() {
	s.mu.Lock()
	s.progress.Processed++
	notify := s.notifyLocked()
	s.mu.Unlock()

	notify()
}

// Fail records a row error. When advance is true the row also counts as
// processed.
func (s *Session) Fail(e ImportError, advance bool) {
	s.mu.Lock()
	s.errors = append(s.errors, e)
	s.progress.ErrorCount = len(s.errors)
	s.progress.LastError = e.Message
	if advance {
		s.progress.Processed++
	}
	notify := s.notifyLocked()
	s.mu.Unlock()

	notify()
}

// Abort terminates the session in error with a file-level message. No row
// has been processed.
func (s *Session) Abort(message string) {
	s.mu.Lock()
	if s.progress.Done {
		s.mu.Unlock()
		return
	}
	s.structural = message
	s.progress.LastError = message
	notify := s.terminateLocked(StatusError)
	s.mu.Unlock()

	s.complete(notify)
}

// Finish terminates the session once every row has been handled.
func (s *Session) Finish() {
	s.mu.Lock()
	if s.progress.Done {
		s.mu.Unlock()
		return
	}
	status := StatusSuccess
	if len(s.errors) > 0 {
		status = StatusError
	}
	notify := s.terminateLocked(status)
	s.mu.Unlock()

	s.complete(notify)
}

// complete runs the final callback, then releases Done waiters.
func (s *Session) complete(notify func()) {
	notify()
	close(s.done)
}

// terminateLocked builds the result and closes every subscriber after the
// final snapshot. The caller runs the returned callback and closes done.
func (s *Session) terminateLocked(status ImportStatus) func() {
	s.progress.Status = status
	s.progress.Done = true

	errs := make([]ImportError, len(s.errors))
	copy(errs, s.errors)
	s.result = &ImportResult{
		ImportID:        s.progress.ImportID,
		Mode:            s.progress.Mode,
		FileName:        s.progress.FileName,
		Status:          status,
		Total:           s.progress.Total,
		Processed:       s.progress.Processed,
		Errors:          errs,
		StructuralError: s.structural,
		StartedAt:       s.startedAt,
		Duration:        time.Since(s.startedAt),
	}

	notify := s.notifyLocked()
	for _, ch := range s.listeners {
		close(ch)
	}
	s.listeners = nil
	return notify
}

// Snapshot returns the current progress.
func (s *Session) Snapshot() ImportProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Subscribe returns a channel that receives a snapshot on every change and
// is closed when the session terminates. The current snapshot is sent
// immediately. Slow subscribers miss intermediate updates.
func (s *Session) Subscribe() <-chan ImportProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ImportProgress, listenerBuffer)
	ch <- s.progress
	if s.progress.Done {
		close(ch)
		return ch
	}
	s.listeners = append(s.listeners, ch)
	return ch
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the final result, or nil while the session is running.
func (s *Session) Result() *ImportResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// notifyLocked pushes the current snapshot to subscribers and returns the
// OnChange call for it. Callers run that after unlocking so the callback
// may read the session.
func (s *Session) notifyLocked() func() {
	snap := s.progress
	for _, ch := range s.listeners {
		select {
		case ch <- snap:
		default:
			// Listener is slow, skip this update
		}
	}
	fn := s.onChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(snap) }
}
