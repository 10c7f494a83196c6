package contacts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Finder looks up contacts by normalised email or phone, skipping excludeID.
// Both methods return nil, nil when nothing matches.
type Finder interface {
	FindByEmail(ctx context.Context, email string, excludeID int64) (*Contact, error)
	FindByPhone(ctx context.Context, phone string, excludeID int64) (*Contact, error)
}

// DuplicateChecker answers whether an email or phone already belongs to
// another contact. Email and phone are looked up concurrently and identical
// in-flight lookups share one query.
type DuplicateChecker struct {
	finder Finder
	group  singleflight.Group
}

// lookupTimeout bounds a shared lookup once it no longer follows any single
// caller's context.
const lookupTimeout = 5 * time.Second

// NewDuplicateChecker wraps finder.
func NewDuplicateChecker(finder Finder) *DuplicateChecker {
	return &DuplicateChecker{finder: finder}
}

// Check looks up both fields. An email match wins over a phone match.
func (c *DuplicateChecker) Check(ctx context.Context, email, phone string, excludeID int64) (DuplicateResult, error) {
	email = NormalizeEmail(email)
	phone = NormalizePhone(phone)

	var byEmail, byPhone *Contact
	g, gctx := errgroup.WithContext(ctx)
	if email != "" {
		g.Go(func() error {
			found, err := c.lookup(gctx, FieldEmail, email, excludeID)
			byEmail = found
			return err
		})
	}
	if phone != "" {
		g.Go(func() error {
			found, err := c.lookup(gctx, FieldPhone, phone, excludeID)
			byPhone = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return DuplicateResult{}, err
	}

	switch {
	case byEmail != nil:
		return DuplicateResult{IsDuplicate: true, Field: FieldEmail, Existing: byEmail}, nil
	case byPhone != nil:
		return DuplicateResult{IsDuplicate: true, Field: FieldPhone, Existing: byPhone}, nil
	}
	return DuplicateResult{}, nil
}

// CheckField looks up a single field.
func (c *DuplicateChecker) CheckField(ctx context.Context, field Field, value string, excludeID int64) (DuplicateResult, error) {
	switch field {
	case FieldEmail:
		return c.Check(ctx, value, "", excludeID)
	case FieldPhone:
		return c.Check(ctx, "", value, excludeID)
	}
	return DuplicateResult{}, fmt.Errorf("unknown duplicate field %q", field)
}

// lookup shares one finder call between identical in-flight lookups. The
// shared call runs detached from the first caller's cancellation, and each
// caller stops waiting when its own context ends.
func (c *DuplicateChecker) lookup(ctx context.Context, field Field, value string, excludeID int64) (*Contact, error) {
	key := string(field) + ":" + value + ":" + strconv.FormatInt(excludeID, 10)
	resultChan := c.group.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		if field == FieldEmail {
			return c.finder.FindByEmail(sharedCtx, value, excludeID)
		}
		return c.finder.FindByPhone(sharedCtx, value, excludeID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-resultChan:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("find contact by %s: %w", field, res.Err)
	}
	found, _ := res.Val.(*Contact)
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}
