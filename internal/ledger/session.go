package ledger

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Session is one group's ledger. All fields are guarded by mu; Service methods
// acquire it, the helpers in this file assume it is held.
type Session struct {
	mu sync.Mutex

	id               string
	members          []string
	balances         map[string]Amount
	expenses         []Expense
	paymentAddresses map[string]string
	externalIDs      map[string]string
	draft            *draft

	version   int64
	updatedAt time.Time
}

func newSession(id string) *Session {
	return &Session{
		id:               id,
		balances:         make(map[string]Amount),
		paymentAddresses: make(map[string]string),
		externalIDs:      make(map[string]string),
	}
}

func (s *Session) isMember(name string) bool {
	return lo.Contains(s.members, name)
}

func (s *Session) touch(now time.Time) {
	s.version++
	s.updatedAt = now
}

func normalizeRoster(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("%w: 空の名前は登録できません", ErrInvalidInput)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: 名前が重複しています (%s)", ErrInvalidInput, name)
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%w: メンバーは2人以上必要です", ErrInvalidInput)
	}
	return out, nil
}

// registerMembers replaces the roster and zeroes all balances. History is kept.
func (s *Session) registerMembers(names []string, now time.Time) ([]string, error) {
	roster, err := normalizeRoster(names)
	if err != nil {
		return nil, err
	}
	s.members = roster
	s.balances = make(map[string]Amount, len(roster))
	for _, m := range roster {
		s.balances[m] = 0
	}
	for m := range s.paymentAddresses {
		if !s.isMember(m) {
			delete(s.paymentAddresses, m)
		}
	}
	s.draft = nil
	s.touch(now)
	return slices.Clone(roster), nil
}

func (s *Session) addMember(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: 空の名前は登録できません", ErrInvalidInput)
	}
	if s.isMember(name) {
		return fmt.Errorf("%w: %s は既にメンバーです", ErrInvalidInput, name)
	}
	s.members = append(s.members, name)
	s.balances[name] = 0
	s.touch(now)
	return nil
}

func (s *Session) setPaymentAddress(member, address string, now time.Time) error {
	if !s.isMember(member) {
		return fmt.Errorf("%w: %s", ErrUnknownMember, member)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: 支払先が空です", ErrInvalidInput)
	}
	s.paymentAddresses[member] = address
	s.touch(now)
	return nil
}

// recordExternalID reports whether the mapping changed.
func (s *Session) recordExternalID(member, externalID string, now time.Time) bool {
	if s.externalIDs[member] == externalID {
		return false
	}
	s.externalIDs[member] = externalID
	s.touch(now)
	return true
}

// orderedBalances lists balances in roster order.
func (s *Session) orderedBalances() []Balance {
	return lo.Map(s.members, func(m string, _ int) Balance {
		return Balance{Member: m, Amount: s.balances[m]}
	})
}

func (s *Session) memberViews() []Member {
	return lo.Map(s.members, func(m string, _ int) Member {
		return Member{Name: m, Balance: s.balances[m], PaymentAddress: s.paymentAddresses[m]}
	})
}

func (s *Session) personal(name string) Personal {
	p := Personal{Name: name, Net: s.balances[name]}
	for _, e := range s.expenses {
		if e.Payer == name {
			p.Paid += e.Amount
		}
		if lo.Contains(e.Beneficiaries, name) {
			p.Share += e.Share
		}
	}
	return p
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		SessionID:   s.id,
		Version:     s.version,
		UpdatedAt:   s.updatedAt,
		Members:     s.memberViews(),
		Expenses:    cloneExpenses(s.expenses),
		ExternalIDs: lo.Assign(s.externalIDs),
	}
}

func sessionFromSnapshot(snap Snapshot) *Session {
	s := newSession(snap.SessionID)
	for _, m := range snap.Members {
		s.members = append(s.members, m.Name)
		s.balances[m.Name] = m.Balance
		if m.PaymentAddress != "" {
			s.paymentAddresses[m.Name] = m.PaymentAddress
		}
	}
	s.expenses = cloneExpenses(snap.Expenses)
	for k, v := range snap.ExternalIDs {
		s.externalIDs[k] = v
	}
	s.version = snap.Version
	s.updatedAt = snap.UpdatedAt
	return s
}

func cloneExpenses(in []Expense) []Expense {
	out := make([]Expense, len(in))
	for i, e := range in {
		e.Beneficiaries = slices.Clone(e.Beneficiaries)
		out[i] = e
	}
	return out
}

func sumBalances(balances map[string]Amount) Amount {
	var total Amount
	for _, v := range balances {
		total += v
	}
	return total
}
