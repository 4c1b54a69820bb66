package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{MESSAGE_STATUS_PENDING, MESSAGE_STATUS_SENT, true},
		{MESSAGE_STATUS_PENDING, MESSAGE_STATUS_DELIVERED, true},
		{MESSAGE_STATUS_SENT, MESSAGE_STATUS_DELIVERED, true},
		{MESSAGE_STATUS_SENT, MESSAGE_STATUS_READ, true},
		{MESSAGE_STATUS_DELIVERED, MESSAGE_STATUS_READ, true},
		{MESSAGE_STATUS_PENDING, MESSAGE_STATUS_FAILED, true},
		{MESSAGE_STATUS_SENT, MESSAGE_STATUS_FAILED, true},

		{MESSAGE_STATUS_READ, MESSAGE_STATUS_DELIVERED, false},
		{MESSAGE_STATUS_DELIVERED, MESSAGE_STATUS_SENT, false},
		{MESSAGE_STATUS_SENT, MESSAGE_STATUS_PENDING, false},
		{MESSAGE_STATUS_DELIVERED, MESSAGE_STATUS_DELIVERED, false},
		{MESSAGE_STATUS_DELIVERED, MESSAGE_STATUS_FAILED, false},
		{MESSAGE_STATUS_READ, MESSAGE_STATUS_FAILED, false},
		{MESSAGE_STATUS_FAILED, MESSAGE_STATUS_SENT, false},
		{MESSAGE_STATUS_FAILED, MESSAGE_STATUS_READ, false},
		{MESSAGE_STATUS_SENT, "bogus", false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusNeverMovesBackwardOverAnyPath(t *testing.T) {
	all := []string{MESSAGE_STATUS_PENDING, MESSAGE_STATUS_SENT, MESSAGE_STATUS_DELIVERED, MESSAGE_STATUS_READ, MESSAGE_STATUS_FAILED}
	for _, from := range all {
		for _, to := range all {
			if !CanTransition(from, to) || to == MESSAGE_STATUS_FAILED {
				continue
			}
			assert.Greaterf(t, statusRank[to], statusRank[from], "%s -> %s", from, to)
		}
	}
}
