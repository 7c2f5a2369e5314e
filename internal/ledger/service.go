package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Store    Store
	Exporter Exporter
	Notifier Notifier
	Logger   *slog.Logger

	DraftTTL          time.Duration
	DraftPolicy       DraftPolicy
	ExportTimeout     time.Duration
	NotifyConcurrency int

	Now   func() time.Time
	NewID func() string
}

// Service owns every session. Each session serializes its own operations;
// different sessions never block each other.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	opts Options
	log  *slog.Logger
	wg   sync.WaitGroup

	exported      atomic.Int64
	exportFailed  atomic.Int64
	persisted     atomic.Int64
	persistFailed atomic.Int64
}

func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DraftPolicy == "" {
		opts.DraftPolicy = DraftOverwrite
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = 30 * time.Second
	}
	if opts.NotifyConcurrency <= 0 {
		opts.NotifyConcurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		sessions: make(map[string]*Session),
		opts:     opts,
		log:      opts.Logger.With("component", "ledger"),
	}
}

// Restore loads every stored snapshot. It is meant to run once before the bot starts.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.opts.Store == nil {
		return 0, nil
	}
	snaps, err := s.opts.Store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		sess := sessionFromSnapshot(snap)
		if total := sumBalances(sess.balances); total != 0 {
			s.log.WarnContext(ctx, "restored session does not balance", "session_id", snap.SessionID, "sum", total.String())
		}
		s.sessions[snap.SessionID] = sess
	}
	return len(snaps), nil
}

// Close waits for in-flight exports.
func (s *Service) Close() {
	s.wg.Wait()
}

func (s *Service) Stats() Stats {
	return Stats{
		Exported:      s.exported.Load(),
		ExportFailed:  s.exportFailed.Load(),
		Persisted:     s.persisted.Load(),
		PersistFailed: s.persistFailed.Load(),
	}
}

// SessionIDs lists known sessions in no particular order.
func (s *Service) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.sessions)
}

func (s *Service) session(id string) *Session {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess != nil {
		return sess
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess = s.sessions[id]; sess == nil {
		sess = newSession(id)
		s.sessions[id] = sess
	}
	return sess
}

func (s *Service) lookup(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// mutate runs fn under the session lock and persists the new state after unlocking
// when fn changed the version.
func (s *Service) mutate(ctx context.Context, id string, fn func(sess *Session, now time.Time) error) error {
	sess := s.session(id)
	sess.mu.Lock()
	before := sess.version
	err := fn(sess, s.opts.Now())
	var snap *Snapshot
	if sess.version != before && s.opts.Store != nil {
		v := sess.snapshot()
		snap = &v
	}
	sess.mu.Unlock()

	if snap != nil {
		s.persist(ctx, *snap)
	}
	return err
}

func (s *Service) persist(ctx context.Context, snap Snapshot) {
	if err := s.opts.Store.Save(ctx, snap); err != nil {
		s.persistFailed.Add(1)
		s.log.ErrorContext(ctx, "failed to persist session", "session_id", snap.SessionID, "version", snap.Version, "error", err)
		return
	}
	s.persisted.Add(1)
}

func (s *Service) RegisterMembers(ctx context.Context, sessionID string, names []string) ([]string, error) {
	var roster []string
	err := s.mutate(ctx, sessionID, func(sess *Session, now time.Time) error {
		var err error
		roster, err = sess.registerMembers(names, now)
		return err
	})
	if err == nil {
		s.log.InfoContext(ctx, "members registered", "session_id", sessionID, "members", roster)
	}
	return roster, err
}

func (s *Service) AddMember(ctx context.Context, sessionID, name string) error {
	return s.mutate(ctx, sessionID, func(sess *Session, now time.Time) error {
		return sess.addMember(name, now)
	})
}

func (s *Service) SetPaymentAddress(ctx context.Context, sessionID, member, address string) error {
	return s.mutate(ctx, sessionID, func(sess *Session, now time.Time) error {
		return sess.setPaymentAddress(member, address, now)
	})
}

// RecordExternalID remembers how to reach member out of band. It never fails.
func (s *Service) RecordExternalID(ctx context.Context, sessionID, member, externalID string) {
	_ = s.mutate(ctx, sessionID, func(sess *Session, now time.Time) error {
		sess.recordExternalID(member, externalID, now)
		return nil
	})
}

// Balance returns 0 for unknown sessions and members.
func (s *Service) Balance(sessionID, member string) Amount {
	sess := s.lookup(sessionID)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.balances[member]
}

// Balances lists balances in roster order.
func (s *Service) Balances(sessionID string) []Balance {
	sess := s.lookup(sessionID)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.orderedBalances()
}

func (s *Service) Members(sessionID string) []Member {
	sess := s.lookup(sessionID)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.memberViews()
}

// History returns committed expenses in commit order.
func (s *Service) History(sessionID string) []Expense {
	sess := s.lookup(sessionID)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return cloneExpenses(sess.expenses)
}

func (s *Service) PersonalSummary(sessionID, name string) Personal {
	sess := s.lookup(sessionID)
	if sess == nil {
		return Personal{Name: name}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.personal(name)
}

func (s *Service) PaymentAddresses(sessionID string) map[string]string {
	sess := s.lookup(sessionID)
	if sess == nil {
		return map[string]string{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return lo.Assign(sess.paymentAddresses)
}

// Version is the session's mutation counter, 0 for unknown sessions.
func (s *Service) Version(sessionID string) int64 {
	sess := s.lookup(sessionID)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.version
}

func (s *Service) Settlements(sessionID string) []Transfer {
	return ComputeSettlements(s.Balances(sessionID))
}

// BeginDraft parses amountText and starts a new pending expense paid by payer.
// replaced is true when a previous unfinished draft was discarded.
func (s *Service) BeginDraft(ctx context.Context, sessionID, payer, amountText, description string) (view DraftView, replaced bool, err error) {
	amount, err := ParseAmount(amountText)
	if err != nil {
		return DraftView{}, false, err
	}
	sess := s.lookup(sessionID)
	if sess == nil {
		return DraftView{}, false, fmt.Errorf("%w: %s", ErrUnknownMember, payer)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	now := s.opts.Now()
	replaced, err = sess.beginDraft(payer, amount, description, now, s.opts.DraftTTL, s.opts.DraftPolicy)
	if err != nil {
		return DraftView{}, false, err
	}
	if replaced {
		s.log.InfoContext(ctx, "pending draft replaced", "session_id", sessionID, "payer", payer)
	}
	view, _ = sess.draftView(now)
	return view, replaced, nil
}

func (s *Service) ToggleBeneficiary(ctx context.Context, sessionID, member string) (DraftView, error) {
	sess := s.lookup(sessionID)
	if sess == nil {
		return DraftView{}, ErrNoActiveDraft
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	now := s.opts.Now()
	if err := sess.toggleBeneficiary(member, now); err != nil {
		return DraftView{}, err
	}
	view, _ := sess.draftView(now)
	return view, nil
}

func (s *Service) CancelDraft(ctx context.Context, sessionID string) error {
	sess := s.lookup(sessionID)
	if sess == nil {
		return ErrNoActiveDraft
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cancelDraft(s.opts.Now())
}

// Draft returns the pending expense, if any.
func (s *Service) Draft(sessionID string) (DraftView, bool) {
	sess := s.lookup(sessionID)
	if sess == nil {
		return DraftView{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.draftView(s.opts.Now())
}

// Commit applies the pending draft. The exporter runs in the background once the
// session lock is released.
func (s *Service) Commit(ctx context.Context, sessionID string) (Expense, error) {
	if s.lookup(sessionID) == nil {
		return Expense{}, ErrNoActiveDraft
	}
	var e Expense
	err := s.mutate(ctx, sessionID, func(sess *Session, now time.Time) error {
		var err error
		e, err = sess.commit(s.opts.NewID(), now)
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	s.log.InfoContext(ctx, "expense committed",
		"session_id", sessionID,
		"expense_id", e.ID,
		"payer", e.Payer,
		"amount", e.Amount.String(),
		"beneficiaries", len(e.Beneficiaries))
	s.export(ctx, sessionID, e)
	return e, nil
}

func (s *Service) export(ctx context.Context, sessionID string, e Expense) {
	if s.opts.Exporter == nil {
		return
	}
	e.Beneficiaries = slices.Clone(e.Beneficiaries)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ExportTimeout)
		defer cancel()
		if err := s.opts.Exporter.Export(ctx, sessionID, e); err != nil {
			s.exportFailed.Add(1)
			s.log.ErrorContext(ctx, "export failed", "session_id", sessionID, "expense_id", e.ID, "error", err)
			return
		}
		s.exported.Add(1)
	}()
}

// NotifyDebtors sends one message per debtor with a known external id. compose
// builds the text from the debtor's outstanding transfers. Delivery failures are
// counted and never abort the batch.
func (s *Service) NotifyDebtors(ctx context.Context, sessionID string, compose func(debtor string, owed []Transfer) string) (NotifyReport, error) {
	var (
		transfers []Transfer
		ids       map[string]string
	)
	if sess := s.lookup(sessionID); sess != nil {
		sess.mu.Lock()
		transfers = ComputeSettlements(sess.orderedBalances())
		ids = lo.Assign(sess.externalIDs)
		sess.mu.Unlock()
	}
	report := NotifyReport{Transfers: transfers}
	if len(transfers) == 0 || s.opts.Notifier == nil {
		return report, nil
	}

	byDebtor := lo.GroupBy(transfers, func(t Transfer) string { return t.From })
	debtors := lo.Uniq(lo.Map(transfers, func(t Transfer, _ int) string { return t.From }))

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.NotifyConcurrency)
	for _, debtor := range debtors {
		debtor := debtor
		externalID, ok := ids[debtor]
		if !ok || externalID == "" {
			report.Skipped++
			continue
		}
		msg := compose(debtor, byDebtor[debtor])
		g.Go(func() error {
			if err := s.opts.Notifier.Notify(gctx, externalID, msg); err != nil {
				failed.Add(1)
				s.log.WarnContext(gctx, "notify failed", "session_id", sessionID, "member", debtor, "error", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	report.Sent = int(sent.Load())
	report.Failed = int(failed.Load())
	return report, nil
}
