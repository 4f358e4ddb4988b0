package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tiketla/settlement/internal/api"
	"github.com/tiketla/settlement/internal/disbursement"
	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/earnings"
	"github.com/tiketla/settlement/internal/ledger"
	"github.com/tiketla/settlement/internal/lifecycle"
	"github.com/tiketla/settlement/internal/money"
	"github.com/tiketla/settlement/internal/notify"
	"github.com/tiketla/settlement/internal/policy"
	"github.com/tiketla/settlement/internal/repository"
	"github.com/tiketla/settlement/internal/tracker"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "settlement.db"
	}

	providerTimeout := 30 * time.Second
	if v := os.Getenv("PROVIDER_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			providerTimeout = time.Duration(secs) * time.Second
		}
	}

	log.Printf("Initializing database at %s", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	earningsRepo := repository.NewEarningsRepo(db)
	payoutRepo := repository.NewPayoutRepo(db)
	profileRepo := repository.NewProfileRepo(db)
	settingsRepo := repository.NewSettingsRepo(db)

	// Sales ledger (read-only collaborator, replicated locally).
	salesLedger := ledger.NewSQLiteLedger(db)

	// Seed ledger data if the DB is empty.
	count, err := salesLedger.SeedCount()
	if err != nil {
		log.Fatalf("Failed to count events: %v", err)
	}
	if count == 0 {
		log.Println("Database is empty, seeding ledger from testdata...")
		if err := seedLedger(salesLedger, profileRepo); err != nil {
			log.Printf("WARNING: Failed to seed ledger: %v", err)
		}
	} else {
		log.Printf("Database already has %d events, skipping seed", count)
	}

	// Create services.
	policySvc := policy.NewService(settingsRepo)
	earningsSvc := earnings.NewService(salesLedger, policySvc, earningsRepo, payoutRepo)
	router := buildRouter(profileRepo)
	router.LogRoutes()
	lifecycleSvc := lifecycle.NewService(
		payoutRepo, earningsSvc, salesLedger, router, policySvc,
		notify.LogNotifier{}, providerTimeout,
	)
	trackerSvc := tracker.NewService(db, salesLedger, earningsSvc)

	// Create HTTP router.
	handler := api.NewRouter(earningsSvc, lifecycleSvc, trackerSvc, policySvc, payoutRepo, settingsRepo)

	log.Printf("Tiketla Settlement & Payout Engine")
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("API base: http://localhost:%s/api/v1", port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  GET    /api/v1/earnings/events/{eventID}")
	log.Printf("  GET    /api/v1/earnings/organizers/{organizerID}")
	log.Printf("  POST   /api/v1/payouts")
	log.Printf("  GET    /api/v1/payouts")
	log.Printf("  GET    /api/v1/payouts/{id}")
	log.Printf("  POST   /api/v1/payouts/{id}/approve")
	log.Printf("  POST   /api/v1/payouts/{id}/execute")
	log.Printf("  POST   /api/v1/payouts/{id}/retry")
	log.Printf("  POST   /api/v1/payouts/{id}/cancel")
	log.Printf("  POST   /api/v1/payouts/{id}/resolve")
	log.Printf("  GET    /api/v1/disbursements/pending")
	log.Printf("  GET    /api/v1/disbursements/stats")
	log.Printf("  GET    /api/v1/settings")
	log.Printf("  PUT    /api/v1/settings")
	log.Printf("  GET    /api/v1/settings/history")

	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// buildRouter wires the disbursement rails. The stub transports stand in
// for the real provider clients: they succeed immediately and dedupe is the
// provider's job, keyed on the reference we pass.
func buildRouter(profileRepo *repository.ProfileRepo) *disbursement.Router {
	stubTransfer := func(rail string) disbursement.TransferFunc {
		return func(ctx context.Context, amount money.Money, destination, reference string) (string, error) {
			log.Printf("[%s] transfer %s to %s (ref %s)", rail,
				amount.FormatForDisplay("en-US"), destination, reference)
			return rail + "-" + uuid.NewString(), nil
		}
	}
	stubStatus := func(ctx context.Context, reference string) (disbursement.ProviderStatus, error) {
		return disbursement.StatusCompleted, nil
	}

	mobileMoney := disbursement.NewRailProvider("moncash", stubTransfer("moncash"), stubStatus)
	connected := disbursement.NewRailProvider("stripe_connect", stubTransfer("stripe_connect"), stubStatus)

	var prefunded disbursement.BalanceProvider
	if v := os.Getenv("PREFUNDED_BALANCE_HTG"); v != "" {
		if amount, err := strconv.ParseInt(v, 10, 64); err == nil && amount > 0 {
			balance := money.New(amount, money.HTG)
			prefunded = disbursement.NewPrefundedProvider(
				"moncash_prefunded", stubTransfer("moncash_prefunded"), stubStatus,
				func(ctx context.Context) (money.Money, error) { return balance, nil },
			)
		}
	}

	return disbursement.NewRouter(profileRepo, mobileMoney, connected, prefunded)
}

type seedFile struct {
	Events   []domain.Event         `json:"events"`
	Sales    []domain.Sale          `json:"sales"`
	Profiles []domain.PayoutProfile `json:"profiles"`
}

func seedLedger(salesLedger *ledger.SQLiteLedger, profileRepo *repository.ProfileRepo) error {
	// Try multiple possible locations for testdata.
	candidates := []string{
		"testdata/ledger.json",
		filepath.Join(".", "testdata", "ledger.json"),
	}

	// Also try to find relative to the executable.
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "ledger.json"),
			filepath.Join(dir, "..", "..", "testdata", "ledger.json"),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			log.Printf("Loaded ledger from %s", path)
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find ledger.json in any candidate path: %w", loadErr)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("unmarshal ledger: %w", err)
	}

	inserted, err := salesLedger.BulkInsert(seed.Events, seed.Sales)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	for i := range seed.Profiles {
		if err := profileRepo.Upsert(&seed.Profiles[i]); err != nil {
			return fmt.Errorf("seed profile %d: %w", i, err)
		}
	}

	log.Printf("Seeded %d events, %d sales, %d payout profiles",
		inserted, len(seed.Sales), len(seed.Profiles))
	return nil
}
