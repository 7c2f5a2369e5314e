package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// DraftPolicy decides what BeginDraft does while another draft is pending.
type DraftPolicy string

const (
	// DraftOverwrite discards the pending draft and reports the replacement.
	DraftOverwrite DraftPolicy = "overwrite"
	// DraftReject refuses to start a new draft until the pending one is finished or expired.
	DraftReject DraftPolicy = "reject"
)

type draft struct {
	payer       string
	amount      Amount
	description string
	selected    map[string]struct{}
	createdAt   time.Time
	expiresAt   time.Time
}

func (d *draft) expired(now time.Time) bool {
	return !d.expiresAt.IsZero() && !now.Before(d.expiresAt)
}

// pending returns the live draft, dropping it first if it has expired.
func (s *Session) pending(now time.Time) *draft {
	if s.draft != nil && s.draft.expired(now) {
		s.draft = nil
	}
	return s.draft
}

func (s *Session) beginDraft(payer string, amount Amount, description string, now time.Time, ttl time.Duration, policy DraftPolicy) (bool, error) {
	if !s.isMember(payer) {
		return false, fmt.Errorf("%w: %s", ErrUnknownMember, payer)
	}
	replaced := s.pending(now) != nil
	if replaced && policy == DraftReject {
		return false, fmt.Errorf("%w: %s さんの %s", ErrDraftPending, s.draft.payer, s.draft.amount)
	}
	d := &draft{
		payer:       payer,
		amount:      amount,
		description: strings.TrimSpace(description),
		selected:    make(map[string]struct{}),
		createdAt:   now,
	}
	if ttl > 0 {
		d.expiresAt = now.Add(ttl)
	}
	s.draft = d
	return replaced, nil
}

func (s *Session) toggleBeneficiary(member string, now time.Time) error {
	d := s.pending(now)
	if d == nil {
		return ErrNoActiveDraft
	}
	if !s.isMember(member) {
		return fmt.Errorf("%w: %s", ErrUnknownMember, member)
	}
	if _, ok := d.selected[member]; ok {
		delete(d.selected, member)
	} else {
		d.selected[member] = struct{}{}
	}
	return nil
}

func (s *Session) cancelDraft(now time.Time) error {
	if s.pending(now) == nil {
		return ErrNoActiveDraft
	}
	s.draft = nil
	return nil
}

// selectedInRosterOrder lists the picked beneficiaries in roster order.
func (s *Session) selectedInRosterOrder(d *draft) []string {
	return lo.Filter(s.members, func(m string, _ int) bool {
		_, ok := d.selected[m]
		return ok
	})
}

func (s *Session) draftView(now time.Time) (DraftView, bool) {
	d := s.pending(now)
	if d == nil {
		return DraftView{}, false
	}
	return DraftView{
		Payer:       d.payer,
		Amount:      d.amount,
		Description: d.description,
		Selected:    s.selectedInRosterOrder(d),
		Members:     slices.Clone(s.members),
		ExpiresAt:   d.expiresAt,
	}, true
}
