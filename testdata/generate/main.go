package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Events ending between 2024-01-08 and 2024-02-18.
	startDate := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	dayRange := 42

	type eventGroup struct {
		country   string
		currency  money.Currency
		prefix    string
		count     int
		minTicket int64 // minor units
		maxTicket int64
	}

	groups := []eventGroup{
		{"HT", money.HTG, "PAP", 12, 50000, 500000},  // Port-au-Prince shows, HTG centimes
		{"US", money.USD, "MIA", 10, 1500, 15000},    // Miami shows, USD cents
		{"CA", money.CAD, "MTL", 8, 2000, 12000},     // Montreal shows, CAD cents
	}

	organizers := make([]string, 8)
	for i := range organizers {
		organizers[i] = fmt.Sprintf("ORG-%03d", i+1)
	}

	var events []domain.Event
	var sales []domain.Sale

	for _, g := range groups {
		for i := 1; i <= g.count; i++ {
			eventID := fmt.Sprintf("EVT-%s-%03d", g.prefix, i)
			endDay := startDate.AddDate(0, 0, rng.Intn(dayRange)).Add(
				time.Duration(18+rng.Intn(5)) * time.Hour,
			)

			events = append(events, domain.Event{
				ID:          eventID,
				OrganizerID: organizers[rng.Intn(len(organizers))],
				Name:        fmt.Sprintf("%s Live #%d", g.prefix, i),
				CountryCode: g.country,
				Currency:    g.currency,
				EndDateTime: endDay,
			})

			// 20-120 confirmed sales per event.
			saleCount := 20 + rng.Intn(100)
			for s := 0; s < saleCount; s++ {
				price := g.minTicket + rng.Int63n(g.maxTicket-g.minTicket)
				price = price / 100 * 100 // whole-unit ticket prices
				soldAt := endDay.AddDate(0, 0, -rng.Intn(30))
				sales = append(sales, domain.Sale{
					ID:      fmt.Sprintf("%s-S%04d", eventID, s+1),
					EventID: eventID,
					Amount:  money.New(price, g.currency),
					SoldAt:  soldAt,
				})
			}
		}
	}

	// Verified payout profiles so seeded payouts can execute end-to-end.
	var profiles []domain.PayoutProfile
	for i, org := range organizers {
		provider := "stripe_connect"
		destination := fmt.Sprintf("acct_%08d", 10000000+i)
		if i%2 == 0 {
			provider = "moncash"
			destination = fmt.Sprintf("+509%08d", 30000000+i)
		}
		profiles = append(profiles, domain.PayoutProfile{
			OrganizerID:    org,
			Provider:       provider,
			Destination:    destination,
			Status:         domain.ProfileVerified,
			InstantAllowed: i%4 == 0,
			UpdatedAt:      startDate,
		})
	}

	out := map[string]any{
		"events":   events,
		"sales":    sales,
		"profiles": profiles,
	}
	writeJSONFile(filepath.Join(baseDir, "ledger.json"), out)
	fmt.Printf("Generated %d events, %d sales, %d profiles -> ledger.json\n",
		len(events), len(sales), len(profiles))
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	candidates := []string{
		"testdata",
		"./testdata",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	// Fallback.
	return "testdata"
}
