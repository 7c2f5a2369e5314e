package ledger

import (
	"fmt"
	"time"
)

// commit turns the pending draft into an Expense. The draft stays live when the
// selection is empty so the user can keep picking.
func (s *Session) commit(id string, now time.Time) (Expense, error) {
	d := s.pending(now)
	if d == nil {
		return Expense{}, ErrNoActiveDraft
	}
	beneficiaries := s.selectedInRosterOrder(d)
	if len(beneficiaries) == 0 {
		return Expense{}, ErrEmptySelection
	}
	e := Expense{
		ID:            id,
		Seq:           len(s.expenses) + 1,
		CreatedAt:     now,
		Description:   d.description,
		Amount:        d.amount,
		Payer:         d.payer,
		Beneficiaries: beneficiaries,
		Share:         d.amount / Amount(len(beneficiaries)),
	}
	if err := s.applyExpense(e); err != nil {
		return Expense{}, err
	}
	s.draft = nil
	s.touch(now)
	return e, nil
}

// applyExpense updates balances and history together. The new balance map is
// built on the side and swapped in only once every entry is valid.
func (s *Session) applyExpense(e Expense) error {
	if _, ok := s.balances[e.Payer]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, e.Payer)
	}
	next := make(map[string]Amount, len(s.balances))
	for k, v := range s.balances {
		next[k] = v
	}
	for _, m := range e.Beneficiaries {
		if _, ok := next[m]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMember, m)
		}
		if m == e.Payer {
			continue
		}
		next[m] -= e.Share
		next[e.Payer] += e.Share
	}
	if total := sumBalances(next); total != 0 {
		return fmt.Errorf("残高の合計が0になりません (%s)", total)
	}
	s.balances = next
	s.expenses = append(s.expenses, e)
	return nil
}
