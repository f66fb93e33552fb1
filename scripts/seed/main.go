// Command seed loads a deterministic set of close approaches for local
// development, so the dashboard has data before the first ingestion run.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/neotracker/neotracker/internal/app"
	"github.com/neotracker/neotracker/internal/catalog"
	"github.com/neotracker/neotracker/internal/platform/cache"
	"github.com/neotracker/neotracker/internal/platform/db"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding close approaches...")
	records := seedRecords(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), 240)
	saved, err := catalog.NewRepository(pool, nil).SaveRecords(ctx, records)
	if err != nil {
		log.Fatalf("seed close approaches: %v", err)
	}
	fmt.Printf("  saved %d records\n", saved)

	// Without redis the API still reads postgres; it just won't see the new
	// rows until its cached copy expires.
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		fmt.Fprintf(os.Stderr, "skip cache bump: %v\n", err)
	} else {
		defer client.Close()
		ver, err := catalog.NewCache(client, cfg.CatalogCacheTTL).Bump(ctx)
		if err != nil {
			log.Fatalf("bump catalog cache: %v", err)
		}
		fmt.Println("→ Catalog cache version", ver)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

var designations = []string{
	"101955 Bennu (1999 RQ36)",
	"99942 Apophis (2004 MN4)",
	"162173 Ryugu (1999 JU3)",
	"433 Eros (A898 PA)",
	"25143 Itokawa (1998 SF36)",
	"3200 Phaethon (1983 TB)",
	"4179 Toutatis (1989 AC)",
	"1862 Apollo (1932 HA)",
}

// seedRecords spreads n approaches over the designations, a few days apart,
// with distances cycling through the dangerous range.
func seedRecords(start time.Time, n int) []catalog.Record {
	out := make([]catalog.Record, 0, n)
	for i := 0; i < n; i++ {
		h := 18 + float64(i%9)
		out = append(out, catalog.Record{
			Designation:       designations[i%len(designations)],
			ApproachTime:      start.Add(time.Duration(i) * 73 * time.Hour),
			DistanceAU:        math.Round((0.002+float64(i%50)*0.0019)*1e6) / 1e6,
			VelocityKmS:       5 + float64(i%31),
			AbsoluteMagnitude: &h,
		})
	}
	return out
}
