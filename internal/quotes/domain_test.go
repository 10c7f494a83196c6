package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusAccepted, false},
		{StatusSent, StatusAccepted, true},
		{StatusSent, StatusRejected, true},
		{StatusSent, StatusExpired, true},
		{StatusSent, StatusDraft, false},
		{StatusDraft, StatusCancelled, true},
		{StatusSent, StatusCancelled, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusRejected, false},
		{StatusRejected, StatusCancelled, false},
		{StatusExpired, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusCancelled, StatusDraft, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}
