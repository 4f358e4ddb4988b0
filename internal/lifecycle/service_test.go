package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tiketla/settlement/internal/disbursement"
	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/earnings"
	"github.com/tiketla/settlement/internal/ledger"
	"github.com/tiketla/settlement/internal/money"
	"github.com/tiketla/settlement/internal/policy"
	"github.com/tiketla/settlement/internal/repository"
)

type recordingNotifier struct {
	mu         sync.Mutex
	approved   int
	paid       int
	failed     int
	lastReason string
}

func (n *recordingNotifier) PayoutApproved(_ context.Context, _ *domain.Payout) {
	n.mu.Lock()
	n.approved++
	n.mu.Unlock()
}

func (n *recordingNotifier) PayoutPaid(_ context.Context, _ *domain.Payout) {
	n.mu.Lock()
	n.paid++
	n.mu.Unlock()
}

func (n *recordingNotifier) PayoutFailed(_ context.Context, _ *domain.Payout, reason string) {
	n.mu.Lock()
	n.failed++
	n.lastReason = reason
	n.mu.Unlock()
}

type fixture struct {
	db       *sql.DB
	payouts  *repository.PayoutRepo
	profiles *repository.ProfileRepo
	earnings *repository.EarningsRepo
	ledger   *ledger.SQLiteLedger
	policy   *policy.Service
	notes    *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		db:       db,
		payouts:  repository.NewPayoutRepo(db),
		profiles: repository.NewProfileRepo(db),
		earnings: repository.NewEarningsRepo(db),
		ledger:   ledger.NewSQLiteLedger(db),
		policy:   policy.NewService(repository.NewSettingsRepo(db)),
		notes:    &recordingNotifier{},
		now:      time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC),
	}
}

// service wires a lifecycle service over the given providers. prefunded may
// be nil.
func (f *fixture) service(t *testing.T, mobileMoney, connected disbursement.Provider, prefunded disbursement.BalanceProvider) *Service {
	t.Helper()
	router := disbursement.NewRouter(f.profiles, mobileMoney, connected, prefunded)
	earningsSvc := earnings.NewService(f.ledger, f.policy, f.earnings, f.payouts).
		WithClock(func() time.Time { return f.now })
	return NewService(f.payouts, earningsSvc, f.ledger, router, f.policy, f.notes, 2*time.Second).
		WithClock(func() time.Time { return f.now })
}

func okProvider(name string, calls *[]string) disbursement.Provider {
	return disbursement.NewRailProvider(name,
		func(_ context.Context, _ money.Money, _, reference string) (string, error) {
			if calls != nil {
				*calls = append(*calls, reference)
			}
			return name + "-txn-1", nil
		},
		func(_ context.Context, _ string) (disbursement.ProviderStatus, error) {
			return disbursement.StatusCompleted, nil
		},
	)
}

func failingProvider(name string, transferErr error) disbursement.Provider {
	return disbursement.NewRailProvider(name,
		func(_ context.Context, _ money.Money, _, _ string) (string, error) {
			return "", transferErr
		},
		nil,
	)
}

func (f *fixture) seedUSEvent(t *testing.T, eventID, organizerID string) {
	t.Helper()
	event := domain.Event{
		ID: eventID, OrganizerID: organizerID, Name: "Test Show",
		CountryCode: "US", Currency: money.USD,
		EndDateTime: time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC),
	}
	if _, err := f.ledger.BulkInsert([]domain.Event{event}, nil); err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func (f *fixture) seedHTEvent(t *testing.T, eventID, organizerID string) {
	t.Helper()
	event := domain.Event{
		ID: eventID, OrganizerID: organizerID, Name: "PAP Show",
		CountryCode: "HT", Currency: money.HTG,
		EndDateTime: time.Date(2024, 1, 12, 20, 0, 0, 0, time.UTC),
	}
	if _, err := f.ledger.BulkInsert([]domain.Event{event}, nil); err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func (f *fixture) seedProfile(t *testing.T, organizerID, provider string, status domain.ProfileStatus, instant bool) {
	t.Helper()
	err := f.profiles.Upsert(&domain.PayoutProfile{
		OrganizerID: organizerID, Provider: provider,
		Destination: "dest-" + organizerID, Status: status,
		InstantAllowed: instant, UpdatedAt: f.now,
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func (f *fixture) seedEarnings(t *testing.T, eventID, organizerID string, available money.Money) {
	t.Helper()
	err := f.earnings.Upsert(&domain.EventEarnings{
		EventID: eventID, OrganizerID: organizerID, Currency: available.Currency,
		GrossSales:          available,
		PlatformFee:         money.Zero(available.Currency),
		ProcessingFee:       money.Zero(available.Currency),
		NetAmount:           available,
		WithdrawnAmount:     money.Zero(available.Currency),
		AvailableToWithdraw: available,
		SettlementStatus:    domain.SettlementReady,
		SettlementReadyAt:   f.now.AddDate(0, 0, -1),
		ComputedAt:          f.now,
	})
	if err != nil {
		t.Fatalf("seed earnings: %v", err)
	}
}

func (f *fixture) insertPayout(t *testing.T, id, eventID, organizerID string, amount money.Money, status domain.PayoutStatus) *domain.Payout {
	t.Helper()
	p := &domain.Payout{
		ID: id, EventID: eventID, OrganizerID: organizerID,
		Amount: amount, Method: domain.MethodConnectedAccount,
		Status:        status,
		Reference:     fmt.Sprintf("po-%s-%s", eventID, id),
		ScheduledDate: f.now,
		CreatedAt:     f.now,
	}
	if status == domain.PayoutApproved || status == domain.PayoutPaid || status == domain.PayoutFailed {
		approvedAt := f.now
		p.ApprovedBy = "admin-1"
		p.ApprovedAt = &approvedAt
	}
	if status == domain.PayoutFailed {
		p.FailureReason = "provider rejected"
	}
	if err := f.payouts.Insert(p); err != nil {
		t.Fatalf("insert payout: %v", err)
	}
	return p
}

func TestApproveConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil), okProvider("stripe_connect", nil), nil)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutPending)

	const attempts = 8
	var wg sync.WaitGroup
	var successes, conflicts int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), "P1", fmt.Sprintf("admin-%d", i))
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, domain.ErrIdempotencyViolation):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("%d approvals succeeded, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("%d conflicts, want %d", conflicts, attempts-1)
	}

	payout, err := f.payouts.GetByID("P1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if payout.Status != domain.PayoutApproved {
		t.Errorf("status = %s, want approved", payout.Status)
	}
	if payout.ApprovedBy == "" || payout.ApprovedAt == nil {
		t.Error("winner's approval stamp missing")
	}
}

func TestExecutePaysOutAndSettles(t *testing.T) {
	f := newFixture(t)
	var refs []string
	svc := f.service(t, okProvider("moncash", nil), okProvider("stripe_connect", &refs), nil)
	f.seedUSEvent(t, "EVT-1", "ORG-1")
	f.seedProfile(t, "ORG-1", "stripe_connect", domain.ProfileVerified, false)
	f.seedEarnings(t, "EVT-1", "ORG-1", money.New(5000, money.USD))
	p := f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutApproved)

	paid, err := svc.Execute(context.Background(), "P1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if paid.Status != domain.PayoutPaid {
		t.Errorf("status = %s, want paid", paid.Status)
	}
	if paid.ProviderTxnID != "stripe_connect-txn-1" {
		t.Errorf("provider txn = %q, want stripe_connect-txn-1", paid.ProviderTxnID)
	}
	if paid.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
	if len(refs) != 1 || refs[0] != p.Reference {
		t.Errorf("provider saw refs %v, want [%s]", refs, p.Reference)
	}

	e, err := f.earnings.GetByEventID("EVT-1")
	if err != nil {
		t.Fatalf("GetByEventID: %v", err)
	}
	if e.WithdrawnAmount.Amount != 5000 || e.AvailableToWithdraw.Amount != 0 {
		t.Errorf("earnings after payout: withdrawn %d available %d, want 5000/0",
			e.WithdrawnAmount.Amount, e.AvailableToWithdraw.Amount)
	}
	if f.notes.paid != 1 {
		t.Errorf("paid notifications = %d, want 1", f.notes.paid)
	}
}

func TestExecuteRequiresApproved(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil), okProvider("stripe_connect", nil), nil)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutPending)

	_, err := svc.Execute(context.Background(), "P1")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Execute on pending = %v, want ErrInvalidTransition", err)
	}
}

func TestExecuteFailsOnBadDestination(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil), okProvider("stripe_connect", nil), nil)
	f.seedUSEvent(t, "EVT-1", "ORG-1")
	// Profile exists but verification never finished.
	f.seedProfile(t, "ORG-1", "stripe_connect", domain.ProfilePending, false)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutApproved)

	failed, err := svc.Execute(context.Background(), "P1")
	if !errors.Is(err, domain.ErrDestinationInvalid) {
		t.Fatalf("Execute = %v, want ErrDestinationInvalid", err)
	}
	if failed == nil || failed.Status != domain.PayoutFailed {
		t.Fatalf("payout = %+v, want failed status", failed)
	}
	if failed.FailureReason == "" {
		t.Error("failure reason not recorded")
	}
	if f.notes.failed != 1 {
		t.Errorf("failed notifications = %d, want 1", f.notes.failed)
	}
}

func TestExecuteTimeoutLeavesApproved(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil),
		failingProvider("stripe_connect", context.DeadlineExceeded), nil)
	f.seedUSEvent(t, "EVT-1", "ORG-1")
	f.seedProfile(t, "ORG-1", "stripe_connect", domain.ProfileVerified, false)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutApproved)

	payout, err := svc.Execute(context.Background(), "P1")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("Execute = %v, want ErrTimeout", err)
	}
	if payout == nil || payout.Status != domain.PayoutApproved {
		t.Errorf("payout after timeout = %+v, want still approved (outcome unknown)", payout)
	}

	stored, _ := f.payouts.GetByID("P1")
	if stored.Status != domain.PayoutApproved {
		t.Errorf("stored status = %s, want approved", stored.Status)
	}
}

func TestExecuteProviderOutageLeavesApproved(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil),
		failingProvider("stripe_connect", fmt.Errorf("gateway 503: %w", domain.ErrProviderUnavailable)), nil)
	f.seedUSEvent(t, "EVT-1", "ORG-1")
	f.seedProfile(t, "ORG-1", "stripe_connect", domain.ProfileVerified, false)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutApproved)

	payout, err := svc.Execute(context.Background(), "P1")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("Execute = %v, want ErrProviderUnavailable", err)
	}
	if payout.Status != domain.PayoutApproved {
		t.Errorf("status = %s, want approved", payout.Status)
	}
}

func TestExecuteProviderRejectionFailsPayout(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil),
		failingProvider("stripe_connect", errors.New("account closed")), nil)
	f.seedUSEvent(t, "EVT-1", "ORG-1")
	f.seedProfile(t, "ORG-1", "stripe_connect", domain.ProfileVerified, false)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutApproved)

	failed, err := svc.Execute(context.Background(), "P1")
	if err == nil {
		t.Fatal("Execute succeeded, want provider rejection")
	}
	if failed.Status != domain.PayoutFailed {
		t.Errorf("status = %s, want failed", failed.Status)
	}
	if failed.FailureReason != "account closed" {
		t.Errorf("failure reason = %q, want provider message", failed.FailureReason)
	}
}

func TestExecutePrefundedFallback(t *testing.T) {
	f := newFixture(t)
	var prefundedRefs, moncashRefs []string

	prefunded := disbursement.NewPrefundedProvider("moncash_prefunded",
		func(_ context.Context, _ money.Money, _, reference string) (string, error) {
			prefundedRefs = append(prefundedRefs, reference)
			return "prefunded-txn-1", nil
		},
		nil,
		func(_ context.Context) (money.Money, error) {
			return money.New(1000, money.HTG), nil // too small for the payout
		},
	)
	svc := f.service(t, okProvider("moncash", &moncashRefs), okProvider("stripe_connect", nil), prefunded)

	f.seedHTEvent(t, "EVT-HT", "ORG-1")
	f.seedProfile(t, "ORG-1", "moncash", domain.ProfileVerified, true)
	f.seedEarnings(t, "EVT-HT", "ORG-1", money.New(250000, money.HTG))
	p := f.insertPayout(t, "P1", "EVT-HT", "ORG-1", money.New(250000, money.HTG), domain.PayoutApproved)

	paid, err := svc.Execute(context.Background(), "P1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if paid.Status != domain.PayoutPaid {
		t.Errorf("status = %s, want paid via fallback", paid.Status)
	}
	if len(prefundedRefs) != 0 {
		t.Errorf("prefunded transfer ran despite short balance: %v", prefundedRefs)
	}
	// The fallback reuses the payout reference: one logical transfer, one
	// idempotency key.
	if len(moncashRefs) != 1 || moncashRefs[0] != p.Reference {
		t.Errorf("fallback refs %v, want [%s]", moncashRefs, p.Reference)
	}
}

func TestExecutePrefundedFastPath(t *testing.T) {
	f := newFixture(t)
	var prefundedRefs, moncashRefs []string

	prefunded := disbursement.NewPrefundedProvider("moncash_prefunded",
		func(_ context.Context, _ money.Money, _, reference string) (string, error) {
			prefundedRefs = append(prefundedRefs, reference)
			return "prefunded-txn-1", nil
		},
		nil,
		func(_ context.Context) (money.Money, error) {
			return money.New(1000000, money.HTG), nil
		},
	)
	svc := f.service(t, okProvider("moncash", &moncashRefs), okProvider("stripe_connect", nil), prefunded)

	f.seedHTEvent(t, "EVT-HT", "ORG-1")
	f.seedProfile(t, "ORG-1", "moncash", domain.ProfileVerified, true)
	f.seedEarnings(t, "EVT-HT", "ORG-1", money.New(250000, money.HTG))
	f.insertPayout(t, "P1", "EVT-HT", "ORG-1", money.New(250000, money.HTG), domain.PayoutApproved)

	paid, err := svc.Execute(context.Background(), "P1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if paid.ProviderTxnID != "prefunded-txn-1" {
		t.Errorf("provider txn = %q, want prefunded fast path", paid.ProviderTxnID)
	}
	if len(moncashRefs) != 0 {
		t.Errorf("standard rail used despite sufficient prefunded balance: %v", moncashRefs)
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil), okProvider("stripe_connect", nil), nil)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutFailed)

	retried, err := svc.Retry(context.Background(), "P1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != domain.PayoutPending {
		t.Errorf("status = %s, want pending", retried.Status)
	}
	if retried.FailureReason != "" {
		t.Errorf("failure reason %q not cleared", retried.FailureReason)
	}
	if retried.ApprovedBy != "" || retried.ApprovedAt != nil {
		t.Error("approval stamps not cleared; a retried payout needs fresh approval")
	}
	if want := f.policy.NextPayoutWindow(f.now); !retried.ScheduledDate.Equal(want) {
		t.Errorf("rescheduled %s, want next window %s", retried.ScheduledDate, want)
	}

	// No duplicate record: still exactly one payout for the organizer.
	all, err := f.payouts.ListByOrganizer("ORG-1", "")
	if err != nil {
		t.Fatalf("ListByOrganizer: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("%d payout records after retry, want 1", len(all))
	}

	// Retry from any other state is rejected and changes nothing.
	f.insertPayout(t, "P2", "EVT-2", "ORG-1", money.New(5000, money.USD), domain.PayoutPaid)
	if _, err := svc.Retry(context.Background(), "P2"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Retry on paid = %v, want ErrInvalidTransition", err)
	}
	p2, _ := f.payouts.GetByID("P2")
	if p2.Status != domain.PayoutPaid {
		t.Errorf("paid payout mutated by rejected retry: %s", p2.Status)
	}
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil), okProvider("stripe_connect", nil), nil)
	ctx := context.Background()

	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutPending)
	f.insertPayout(t, "P2", "EVT-2", "ORG-1", money.New(5000, money.USD), domain.PayoutApproved)
	f.insertPayout(t, "P3", "EVT-3", "ORG-1", money.New(5000, money.USD), domain.PayoutPaid)

	for _, id := range []string{"P1", "P2"} {
		cancelled, err := svc.Cancel(ctx, id)
		if err != nil {
			t.Fatalf("Cancel %s: %v", id, err)
		}
		if cancelled.Status != domain.PayoutCancelled {
			t.Errorf("%s status = %s, want cancelled", id, cancelled.Status)
		}
	}

	if _, err := svc.Cancel(ctx, "P3"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Cancel on paid = %v, want ErrInvalidTransition", err)
	}
}

func TestResolveTransfer(t *testing.T) {
	cases := []struct {
		name       string
		status     disbursement.ProviderStatus
		wantStatus domain.PayoutStatus
		wantErr    bool
	}{
		{"completed settles the payout", disbursement.StatusCompleted, domain.PayoutPaid, false},
		{"failed fails the payout", disbursement.StatusFailed, domain.PayoutFailed, true},
		{"processing leaves it approved", disbursement.StatusProcessing, domain.PayoutApproved, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			provider := disbursement.NewRailProvider("stripe_connect",
				func(_ context.Context, _ money.Money, _, _ string) (string, error) {
					return "", errors.New("unreachable in this test")
				},
				func(_ context.Context, _ string) (disbursement.ProviderStatus, error) {
					return c.status, nil
				},
			)
			svc := f.service(t, okProvider("moncash", nil), provider, nil)
			f.seedUSEvent(t, "EVT-1", "ORG-1")
			f.seedProfile(t, "ORG-1", "stripe_connect", domain.ProfileVerified, false)
			f.seedEarnings(t, "EVT-1", "ORG-1", money.New(5000, money.USD))
			p := f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutApproved)

			resolved, err := svc.ResolveTransfer(context.Background(), "P1")
			if c.wantErr && err == nil {
				t.Fatal("ResolveTransfer succeeded, want error")
			}
			if !c.wantErr && err != nil {
				t.Fatalf("ResolveTransfer: %v", err)
			}
			if resolved.Status != c.wantStatus {
				t.Errorf("status = %s, want %s", resolved.Status, c.wantStatus)
			}
			if c.wantStatus == domain.PayoutPaid && resolved.ProviderTxnID != p.Reference {
				t.Errorf("provider txn = %q, want reference %q", resolved.ProviderTxnID, p.Reference)
			}
		})
	}
}

func TestResolveTransferRequiresApproved(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, okProvider("moncash", nil), okProvider("stripe_connect", nil), nil)
	f.insertPayout(t, "P1", "EVT-1", "ORG-1", money.New(5000, money.USD), domain.PayoutPending)

	_, err := svc.ResolveTransfer(context.Background(), "P1")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("ResolveTransfer on pending = %v, want ErrInvalidTransition", err)
	}
}
