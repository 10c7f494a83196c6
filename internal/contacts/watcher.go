package contacts

import (
	"context"
	"sync"
	"time"
)

// FieldChecker runs one duplicate lookup. *DuplicateChecker satisfies it.
type FieldChecker interface {
	CheckField(ctx context.Context, field Field, value string, excludeID int64) (DuplicateResult, error)
}

// FieldResult is the settled check for one field value.
type FieldResult struct {
	Field  Field
	Value  string
	Seq    uint64
	Result DuplicateResult
	Err    error
}

type fieldState struct {
	seq    uint64
	value  string
	timer  *time.Timer
	cancel context.CancelFunc
	latest *FieldResult
}

// FieldWatcher runs debounced duplicate checks while a contact form is being
// edited. Each Update issues a new sequence number for its field; a result is
// kept only if its sequence is still the latest for that field, so slow
// responses for old input can never overwrite newer ones.
type FieldWatcher struct {
	checker   FieldChecker
	excludeID int64
	debounce  time.Duration
	onResult  func(FieldResult)

	mu     sync.Mutex
	fields map[Field]*fieldState
	closed bool
	wg     sync.WaitGroup
}

// NewFieldWatcher builds a watcher for the contact excludeID (0 when new).
// onResult may be nil; it runs with the watcher locked and must not call
// back into it.
func NewFieldWatcher(checker FieldChecker, excludeID int64, debounce time.Duration, onResult func(FieldResult)) *FieldWatcher {
	return &FieldWatcher{
		checker:   checker,
		excludeID: excludeID,
		debounce:  debounce,
		onResult:  onResult,
		fields:    make(map[Field]*fieldState),
	}
}

// Update records a new value for field and schedules its check after the
// quiet period. Pending and in-flight checks for the field are superseded.
// It returns the sequence number issued.
func (w *FieldWatcher) Update(field Field, value string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0
	}
	st := w.fields[field]
	if st == nil {
		st = &fieldState{}
		w.fields[field] = st
	}
	st.seq++
	st.value = value
	st.latest = nil
	w.stopLocked(st)

	seq := st.seq
	if normalizeField(field, value) == "" {
		// Nothing to look up: settle immediately as clean.
		w.settleLocked(st, FieldResult{Field: field, Value: value, Seq: seq})
		return seq
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel
	w.wg.Add(1)
	st.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		res, err := w.checker.CheckField(ctx, field, value, w.excludeID)
		w.complete(FieldResult{Field: field, Value: value, Seq: seq, Result: res, Err: err})
	})
	return seq
}

func (w *FieldWatcher) complete(r FieldResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.fields[r.Field]
	if w.closed || st == nil || st.seq != r.Seq {
		return
	}
	w.settleLocked(st, r)
}

func (w *FieldWatcher) settleLocked(st *fieldState, r FieldResult) {
	st.latest = &r
	if w.onResult != nil {
		w.onResult(r)
	}
}

func (w *FieldWatcher) stopLocked(st *fieldState) {
	if st.timer != nil && st.timer.Stop() {
		// The check never started, so its goroutine will not call Done.
		w.wg.Done()
	}
	st.timer = nil
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

// Latest returns the applied result for field, if the newest value has settled.
func (w *FieldWatcher) Latest(field Field) (FieldResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.fields[field]
	if st == nil || st.latest == nil {
		return FieldResult{}, false
	}
	return *st.latest, true
}

// Wait blocks until every started check has returned.
func (w *FieldWatcher) Wait() {
	w.wg.Wait()
}

// Close cancels outstanding checks and discards their results.
func (w *FieldWatcher) Close() {
	w.mu.Lock()
	w.closed = true
	for _, st := range w.fields {
		w.stopLocked(st)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func normalizeField(field Field, value string) string {
	if field == FieldPhone {
		return NormalizePhone(value)
	}
	return NormalizeEmail(value)
}
