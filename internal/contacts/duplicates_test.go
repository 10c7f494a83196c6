package contacts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	byEmail map[string]Contact
	byPhone map[string]Contact
	calls   atomic.Int32
	block   chan struct{}
	err     error
}

func (f *fakeFinder) find(ctx context.Context, idx map[string]Contact, value string, excludeID int64) (*Contact, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	c, ok := idx[value]
	if !ok || c.ID == excludeID {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeFinder) FindByEmail(ctx context.Context, email string, excludeID int64) (*Contact, error) {
	return f.find(ctx, f.byEmail, email, excludeID)
}

func (f *fakeFinder) FindByPhone(ctx context.Context, phone string, excludeID int64) (*Contact, error) {
	return f.find(ctx, f.byPhone, phone, excludeID)
}

func strp(s string) *string { return &s }

func seededFinder() *fakeFinder {
	jane := Contact{ID: 1, FirstName: "Jane", LastName: "Doe", Email: strp("jane@example.com"), Phone: strp("+33612345678")}
	john := Contact{ID: 2, FirstName: "John", LastName: "Roe", Email: strp("john@example.com"), Phone: strp("+15550109999")}
	return &fakeFinder{
		byEmail: map[string]Contact{"jane@example.com": jane, "john@example.com": john},
		byPhone: map[string]Contact{"+33612345678": jane, "+15550109999": john},
	}
}

func TestCheckFindsEmailAfterNormalising(t *testing.T) {
	checker := NewDuplicateChecker(seededFinder())
	res, err := checker.Check(context.Background(), " JANE@example.com", "", 0)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, FieldEmail, res.Field)
	assert.Equal(t, "Jane Doe", res.Existing.FullName())
}

func TestCheckFindsPhone(t *testing.T) {
	checker := NewDuplicateChecker(seededFinder())
	res, err := checker.Check(context.Background(), "new@example.com", "0033 6 12 34 56 78", 0)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, FieldPhone, res.Field)
	assert.Equal(t, int64(1), res.Existing.ID)
}

func TestCheckEmailWinsOverPhone(t *testing.T) {
	checker := NewDuplicateChecker(seededFinder())
	res, err := checker.Check(context.Background(), "john@example.com", "+33612345678", 0)
	require.NoError(t, err)
	assert.Equal(t, FieldEmail, res.Field)
	assert.Equal(t, int64(2), res.Existing.ID)
}

func TestCheckExcludesContactBeingEdited(t *testing.T) {
	checker := NewDuplicateChecker(seededFinder())
	res, err := checker.Check(context.Background(), "jane@example.com", "+33612345678", 1)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.Nil(t, res.Existing)
}

func TestCheckEmptyInputsSkipLookups(t *testing.T) {
	finder := seededFinder()
	checker := NewDuplicateChecker(finder)
	res, err := checker.Check(context.Background(), " ", "--", 0)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.Zero(t, finder.calls.Load())
}

func TestCheckPropagatesErrors(t *testing.T) {
	finder := seededFinder()
	finder.err = errors.New("connection reset")
	checker := NewDuplicateChecker(finder)
	_, err := checker.Check(context.Background(), "jane@example.com", "", 0)
	assert.ErrorContains(t, err, "connection reset")
}

func TestCheckCollapsesConcurrentIdenticalLookups(t *testing.T) {
	finder := seededFinder()
	finder.block = make(chan struct{})
	checker := NewDuplicateChecker(finder)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]DuplicateResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := checker.Check(context.Background(), "jane@example.com", "", 0)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool { return finder.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(finder.block)
	wg.Wait()

	assert.Equal(t, int32(1), finder.calls.Load())
	for _, res := range results {
		assert.True(t, res.IsDuplicate)
		assert.Equal(t, int64(1), res.Existing.ID)
	}
}

func TestCheckSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	finder := seededFinder()
	finder.block = make(chan struct{})
	checker := NewDuplicateChecker(finder)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := checker.Check(firstCtx, "jane@example.com", "", 0)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return finder.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		res DuplicateResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := checker.Check(context.Background(), "jane@example.com", "", 0)
		second <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(finder.block)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.True(t, got.res.IsDuplicate)
		assert.Equal(t, int64(1), got.res.Existing.ID)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), finder.calls.Load())
}
