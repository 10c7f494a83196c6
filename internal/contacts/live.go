package contacts

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultLiveDebounce is the quiet period before a live check runs.
	DefaultLiveDebounce = 300 * time.Millisecond
	// DefaultLiveIdle evicts form sessions nobody has typed into for this long.
	DefaultLiveIdle = 10 * time.Minute
)

// ErrSuperseded reports that a newer value was entered for the same field
// before this one settled.
var ErrSuperseded = errors.New("duplicate check superseded by newer input")

// LiveChecks keeps one FieldWatcher per open contact form. A form is named by
// the client supplied session key and the contact being edited.
type LiveChecks struct {
	checker  FieldChecker
	debounce time.Duration
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
}

type liveSession struct {
	watcher  *FieldWatcher
	lastUsed time.Time

	mu      sync.Mutex
	latest  map[Field]uint64
	settled map[Field]FieldResult
	waiters map[Field]map[uint64]chan FieldResult
}

// NewLiveChecks builds the session registry over checker.
func NewLiveChecks(checker FieldChecker, debounce, idle time.Duration) *LiveChecks {
	return &LiveChecks{
		checker:  checker,
		debounce: debounce,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*liveSession),
	}
}

// Check feeds value into the session's watcher and waits for it to settle.
// It fails with ErrSuperseded when a later Check for the same field replaces
// it first.
func (l *LiveChecks) Check(ctx context.Context, session string, excludeID int64, field Field, value string) (FieldResult, error) {
	sess := l.session(session, excludeID)
	seq := sess.watcher.Update(field, value)
	if seq == 0 {
		return FieldResult{}, ErrSuperseded
	}

	ch := make(chan FieldResult, 1)
	sess.mu.Lock()
	if seq > sess.latest[field] {
		sess.latest[field] = seq
		for older, waiter := range sess.waiters[field] {
			if older < seq {
				close(waiter)
				delete(sess.waiters[field], older)
			}
		}
	}
	if seq < sess.latest[field] {
		sess.mu.Unlock()
		return FieldResult{Field: field, Value: value, Seq: seq}, ErrSuperseded
	}
	if r, ok := sess.settled[field]; ok && r.Seq == seq {
		sess.mu.Unlock()
		return r, nil
	}
	if sess.waiters[field] == nil {
		sess.waiters[field] = make(map[uint64]chan FieldResult)
	}
	sess.waiters[field][seq] = ch
	sess.mu.Unlock()

	select {
	case r, ok := <-ch:
		if !ok {
			return FieldResult{Field: field, Value: value, Seq: seq}, ErrSuperseded
		}
		return r, nil
	case <-ctx.Done():
		sess.mu.Lock()
		delete(sess.waiters[field], seq)
		sess.mu.Unlock()
		return FieldResult{}, ctx.Err()
	}
}

// Close stops every open session.
func (l *LiveChecks) Close() {
	l.mu.Lock()
	sessions := l.sessions
	l.sessions = make(map[string]*liveSession)
	l.mu.Unlock()
	for _, sess := range sessions {
		sess.watcher.Close()
	}
}

// Sessions reports how many forms are open.
func (l *LiveChecks) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *LiveChecks) session(key string, excludeID int64) *liveSession {
	now := l.now()
	id := key + ":" + strconv.FormatInt(excludeID, 10)

	l.mu.Lock()
	var expired []*liveSession
	for k, s := range l.sessions {
		if k != id && now.Sub(s.lastUsed) > l.idle {
			expired = append(expired, s)
			delete(l.sessions, k)
		}
	}
	sess, ok := l.sessions[id]
	if !ok {
		sess = &liveSession{
			latest:  make(map[Field]uint64),
			settled: make(map[Field]FieldResult),
			waiters: make(map[Field]map[uint64]chan FieldResult),
		}
		sess.watcher = NewFieldWatcher(l.checker, excludeID, l.debounce, sess.deliver)
		l.sessions[id] = sess
	}
	sess.lastUsed = now
	l.mu.Unlock()

	for _, s := range expired {
		s.watcher.Close()
	}
	return sess
}

// deliver runs under the watcher lock and only touches session state.
func (s *liveSession) deliver(r FieldResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled[r.Field] = r
	if waiter, ok := s.waiters[r.Field][r.Seq]; ok {
		waiter <- r
		delete(s.waiters[r.Field], r.Seq)
	}
}
