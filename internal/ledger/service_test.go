package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/susu3304/warikanbot/internal/ledger"
	"github.com/susu3304/warikanbot/internal/mocks"
)

const sid = "chan-1"

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, opts ledger.Options) (*ledger.Service, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now
	var seq atomic.Int64
	opts.NewID = func() string {
		return fmt.Sprintf("exp-%d", seq.Add(1))
	}
	return ledger.NewService(opts), clock
}

func sumOf(balances []ledger.Balance) ledger.Amount {
	var total ledger.Amount
	for _, b := range balances {
		total += b.Amount
	}
	return total
}

func TestService_RoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})

	roster, err := svc.RegisterMembers(ctx, sid, []string{"A", "B", "C"})
	req.NoError(err)
	req.Equal([]string{"A", "B", "C"}, roster)
	for _, b := range svc.Balances(sid) {
		req.Zero(b.Amount)
	}

	_, replaced, err := svc.BeginDraft(ctx, sid, "A", "90", "dinner")
	req.NoError(err)
	req.False(replaced)
	for _, m := range []string{"A", "B", "C"} {
		_, err := svc.ToggleBeneficiary(ctx, sid, m)
		req.NoError(err)
	}
	e, err := svc.Commit(ctx, sid)
	req.NoError(err)
	req.Equal(ledger.Amount(3000), e.Share)
	req.Equal([]string{"A", "B", "C"}, e.Beneficiaries)
	req.Equal(1, e.Seq)

	req.Equal(ledger.Amount(6000), svc.Balance(sid, "A"))
	req.Equal(ledger.Amount(-3000), svc.Balance(sid, "B"))
	req.Equal(ledger.Amount(-3000), svc.Balance(sid, "C"))
	req.Equal([]ledger.Transfer{
		{From: "B", To: "A", Amount: 3000},
		{From: "C", To: "A", Amount: 3000},
	}, svc.Settlements(sid))

	_, ok := svc.Draft(sid)
	req.False(ok)
	req.Len(svc.History(sid), 1)
}

func TestService_UnknownPayer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	require.NoError(t, err)

	_, _, err = svc.BeginDraft(ctx, sid, "Z", "10", "x")
	require.ErrorIs(t, err, ledger.ErrUnknownMember)

	_, _, err = svc.BeginDraft(ctx, "other", "A", "10", "x")
	require.ErrorIs(t, err, ledger.ErrUnknownMember)
}

func TestService_BeginDraftInvalidAmount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	require.NoError(t, err)

	for _, amt := range []string{"abc", "0", "-3"} {
		_, _, err = svc.BeginDraft(ctx, sid, "A", amt, "x")
		require.ErrorIs(t, err, ledger.ErrInvalidInput, amt)
	}
}

func TestService_CancelLeavesBalances(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	req.NoError(err)
	before := svc.Balances(sid)

	_, _, err = svc.BeginDraft(ctx, sid, "A", "20", "taxi")
	req.NoError(err)
	_, err = svc.ToggleBeneficiary(ctx, sid, "A")
	req.NoError(err)
	req.NoError(svc.CancelDraft(ctx, sid))

	req.Equal(before, svc.Balances(sid))
	_, err = svc.Commit(ctx, sid)
	req.ErrorIs(err, ledger.ErrNoActiveDraft)
	req.ErrorIs(svc.CancelDraft(ctx, sid), ledger.ErrNoActiveDraft)
	_, err = svc.ToggleBeneficiary(ctx, sid, "A")
	req.ErrorIs(err, ledger.ErrNoActiveDraft)
}

func TestService_ToggleTwiceIsIdentity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B", "C"})
	req.NoError(err)
	_, _, err = svc.BeginDraft(ctx, sid, "A", "10", "x")
	req.NoError(err)

	v, err := svc.ToggleBeneficiary(ctx, sid, "B")
	req.NoError(err)
	req.Equal([]string{"B"}, v.Selected)
	before := v.Selected

	_, err = svc.ToggleBeneficiary(ctx, sid, "C")
	req.NoError(err)
	v, err = svc.ToggleBeneficiary(ctx, sid, "C")
	req.NoError(err)
	req.Equal(before, v.Selected)

	_, err = svc.ToggleBeneficiary(ctx, sid, "Z")
	req.ErrorIs(err, ledger.ErrUnknownMember)
}

func TestService_EmptySelectionKeepsDraft(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	req.NoError(err)
	_, _, err = svc.BeginDraft(ctx, sid, "B", "10", "x")
	req.NoError(err)

	_, err = svc.Commit(ctx, sid)
	req.ErrorIs(err, ledger.ErrEmptySelection)
	_, ok := svc.Draft(sid)
	req.True(ok)
}

func TestService_RegisterMembersValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	for _, names := range [][]string{
		{"A"},
		{"A", " "},
		{"A", "A "},
		nil,
	} {
		_, err := svc.RegisterMembers(ctx, sid, names)
		require.ErrorIs(t, err, ledger.ErrInvalidInput, "%q", names)
	}
}

func TestService_ReRegisterKeepsHistory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	req.NoError(err)
	req.NoError(svc.SetPaymentAddress(ctx, sid, "A", "a@upi"))
	_, _, err = svc.BeginDraft(ctx, sid, "A", "10", "x")
	req.NoError(err)
	_, err = svc.ToggleBeneficiary(ctx, sid, "B")
	req.NoError(err)
	_, err = svc.Commit(ctx, sid)
	req.NoError(err)

	_, err = svc.RegisterMembers(ctx, sid, []string{"B", "C"})
	req.NoError(err)
	req.Zero(svc.Balance(sid, "B"))
	req.Zero(svc.Balance(sid, "A"))
	req.Len(svc.History(sid), 1)
	req.Empty(svc.PaymentAddresses(sid))
}

func TestService_ConservationAcrossUnevenSplits(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	members := []string{"A", "B", "C", "D"}
	_, err := svc.RegisterMembers(ctx, sid, members)
	req.NoError(err)

	amounts := []string{"10", "33.33", "7.01", "100", "0.03"}
	for i, amt := range amounts {
		payer := members[i%len(members)]
		_, _, err := svc.BeginDraft(ctx, sid, payer, amt, "x")
		req.NoError(err)
		for j, m := range members {
			if (i+j)%2 == 0 || j == 3 {
				_, err := svc.ToggleBeneficiary(ctx, sid, m)
				req.NoError(err)
			}
		}
		_, err = svc.Commit(ctx, sid)
		req.NoError(err)
		req.Zero(sumOf(svc.Balances(sid)))
	}
}

func TestService_DraftPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrite reports replacement", func(t *testing.T) {
		req := require.New(t)
		svc, _ := newService(t, ledger.Options{DraftPolicy: ledger.DraftOverwrite})
		_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
		req.NoError(err)
		_, _, err = svc.BeginDraft(ctx, sid, "A", "10", "first")
		req.NoError(err)
		v, replaced, err := svc.BeginDraft(ctx, sid, "B", "20", "second")
		req.NoError(err)
		req.True(replaced)
		req.Equal("B", v.Payer)
		req.Empty(v.Selected)
	})

	t.Run("reject until expired", func(t *testing.T) {
		req := require.New(t)
		svc, clock := newService(t, ledger.Options{DraftPolicy: ledger.DraftReject, DraftTTL: time.Minute})
		_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
		req.NoError(err)
		_, _, err = svc.BeginDraft(ctx, sid, "A", "10", "first")
		req.NoError(err)
		_, _, err = svc.BeginDraft(ctx, sid, "B", "20", "second")
		req.ErrorIs(err, ledger.ErrDraftPending)

		clock.Advance(2 * time.Minute)
		_, ok := svc.Draft(sid)
		req.False(ok)
		_, err = svc.Commit(ctx, sid)
		req.ErrorIs(err, ledger.ErrNoActiveDraft)

		_, replaced, err := svc.BeginDraft(ctx, sid, "B", "20", "second")
		req.NoError(err)
		req.False(replaced)
	})
}

func TestService_PersonalSummary(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B", "C"})
	req.NoError(err)
	_, _, err = svc.BeginDraft(ctx, sid, "A", "90", "dinner")
	req.NoError(err)
	for _, m := range []string{"A", "B", "C"} {
		_, err := svc.ToggleBeneficiary(ctx, sid, m)
		req.NoError(err)
	}
	_, err = svc.Commit(ctx, sid)
	req.NoError(err)

	req.Equal(ledger.Personal{Name: "A", Paid: 9000, Share: 3000, Net: 6000}, svc.PersonalSummary(sid, "A"))
	req.Equal(ledger.Personal{Name: "B", Paid: 0, Share: 3000, Net: -3000}, svc.PersonalSummary(sid, "B"))
}

func TestService_AddMember(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	req.NoError(err)
	req.NoError(svc.AddMember(ctx, sid, " C "))
	req.ErrorIs(svc.AddMember(ctx, sid, "A"), ledger.ErrInvalidInput)
	req.ErrorIs(svc.AddMember(ctx, sid, ""), ledger.ErrInvalidInput)
	names := []string{}
	for _, m := range svc.Members(sid) {
		names = append(names, m.Name)
	}
	req.Equal([]string{"A", "B", "C"}, names)
	req.ErrorIs(svc.SetPaymentAddress(ctx, sid, "Z", "z@upi"), ledger.ErrUnknownMember)
}

func TestService_ExportIsFiredAndFailuresAreSwallowed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	exporter := mocks.NewMockExporter(ctrl)
	svc, _ := newService(t, ledger.Options{Exporter: exporter})

	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	req.NoError(err)

	exporter.EXPECT().Export(gomock.Any(), sid, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, e ledger.Expense) error {
			if e.Description == "bad" {
				return errors.New("sheets unavailable")
			}
			return nil
		}).Times(2)

	for _, desc := range []string{"ok", "bad"} {
		_, _, err = svc.BeginDraft(ctx, sid, "A", "10", desc)
		req.NoError(err)
		_, err = svc.ToggleBeneficiary(ctx, sid, "B")
		req.NoError(err)
		_, err = svc.Commit(ctx, sid)
		req.NoError(err)
	}
	svc.Close()

	stats := svc.Stats()
	req.Equal(int64(1), stats.Exported)
	req.Equal(int64(1), stats.ExportFailed)
}

func TestService_NotifyDebtors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	svc, _ := newService(t, ledger.Options{Notifier: notifier})

	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B", "C", "D"})
	req.NoError(err)
	svc.RecordExternalID(ctx, sid, "B", "111")
	svc.RecordExternalID(ctx, sid, "C", "222")
	_, _, err = svc.BeginDraft(ctx, sid, "A", "40", "x")
	req.NoError(err)
	for _, m := range []string{"A", "B", "C", "D"} {
		_, err := svc.ToggleBeneficiary(ctx, sid, m)
		req.NoError(err)
	}
	_, err = svc.Commit(ctx, sid)
	req.NoError(err)

	notifier.EXPECT().Notify(gomock.Any(), "111", "B owes 10.00 to A").Return(nil)
	notifier.EXPECT().Notify(gomock.Any(), "222", "C owes 10.00 to A").Return(errors.New("dm closed"))

	report, err := svc.NotifyDebtors(ctx, sid, func(debtor string, owed []ledger.Transfer) string {
		parts := make([]string, 0, len(owed))
		for _, o := range owed {
			parts = append(parts, fmt.Sprintf("%s owes %s to %s", debtor, o.Amount, o.To))
		}
		return strings.Join(parts, "\n")
	})
	req.NoError(err)
	req.Len(report.Transfers, 3)
	req.Equal(1, report.Sent)
	req.Equal(1, report.Failed)
	req.Equal(1, report.Skipped)
}

func TestService_NotifyWhenSettled(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	svc, _ := newService(t, ledger.Options{Notifier: notifier})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	require.NoError(t, err)

	report, err := svc.NotifyDebtors(ctx, sid, func(string, []ledger.Transfer) string { return "" })
	require.NoError(t, err)
	require.Empty(t, report.Transfers)
	require.Zero(t, report.Sent)
}

func TestService_PersistAndRestore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	var saved []ledger.Snapshot
	store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, snap ledger.Snapshot) error {
			saved = append(saved, snap)
			return nil
		}).AnyTimes()

	svc, _ := newService(t, ledger.Options{Store: store})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	req.NoError(err)
	svc.RecordExternalID(ctx, sid, "A", "42")
	svc.RecordExternalID(ctx, sid, "A", "42")
	_, _, err = svc.BeginDraft(ctx, sid, "A", "10", "x")
	req.NoError(err)
	_, err = svc.ToggleBeneficiary(ctx, sid, "B")
	req.NoError(err)
	_, err = svc.Commit(ctx, sid)
	req.NoError(err)

	req.Len(saved, 3, "register, external id, commit")
	last := saved[len(saved)-1]
	req.Equal(int64(3), last.Version)
	req.Equal("42", last.ExternalIDs["A"])
	req.Len(last.Expenses, 1)

	restoreStore := mocks.NewMockStore(ctrl)
	restoreStore.EXPECT().LoadAll(gomock.Any()).Return([]ledger.Snapshot{last}, nil)
	restored, _ := newService(t, ledger.Options{Store: restoreStore})
	n, err := restored.Restore(ctx)
	req.NoError(err)
	req.Equal(1, n)
	req.Equal(svc.Balances(sid), restored.Balances(sid))
	req.Equal(svc.History(sid), restored.History(sid))
	req.Equal(int64(3), restored.Version(sid))
}

func TestService_PersistFailureIsCounted(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc, _ := newService(t, ledger.Options{Store: store})
	_, err := svc.RegisterMembers(ctx, sid, []string{"A", "B"})
	require.NoError(t, err)
	require.Equal(t, int64(1), svc.Stats().PersistFailed)
}

func TestService_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, ledger.Options{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("chan-%d", g%2)
			_, _ = svc.RegisterMembers(ctx, id, []string{"A", "B", "C"})
			for i := 0; i < 20; i++ {
				if _, _, err := svc.BeginDraft(ctx, id, "A", "3.01", "x"); err != nil {
					continue
				}
				_, _ = svc.ToggleBeneficiary(ctx, id, "B")
				_, _ = svc.ToggleBeneficiary(ctx, id, "C")
				_, _ = svc.Commit(ctx, id)
			}
		}(g)
	}
	wg.Wait()
	for _, id := range []string{"chan-0", "chan-1"} {
		require.Zero(t, sumOf(svc.Balances(id)))
	}
}
