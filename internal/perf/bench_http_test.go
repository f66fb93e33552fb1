package perf

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neotracker/neotracker/internal/catalog"
	"github.com/neotracker/neotracker/internal/dashboard"
	"github.com/neotracker/neotracker/internal/refresh"
)

func syntheticCatalog(n int) []catalog.Record {
	base := time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := make([]catalog.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, catalog.Record{
			Designation:  fmt.Sprintf("%d %c%c%d", 1900+i%200, 'A'+rune(i%26), 'A'+rune((i/26)%26), i%97),
			ApproachTime: base.Add(time.Duration(i) * 7 * time.Hour),
			DistanceAU:   float64(i%5000) / 10000,
			VelocityKmS:  float64(i%400) / 10,
		})
	}
	return out
}

func newViewServer(records []catalog.Record) http.Handler {
	store := catalog.NewStore()
	store.Replace(records)
	orch := refresh.New(refresh.Config{Store: store})
	r := chi.NewRouter()
	r.Route("/api", dashboard.NewHandler(nil, orch).MountRoutes)
	return r
}

func TestViewLatencyTargets(t *testing.T) {
	if testing.Short() {
		t.Skip("latency targets skipped in short mode")
	}
	server := newViewServer(syntheticCatalog(50000))
	queries := []string{
		"/api/view",
		"/api/view?q=ab&sort=distance_au&dir=asc&page_size=100",
		"/api/view?min_date=1990-01-01&sort=velocity_km_s&page=7",
		"/api/charts?q=19",
	}

	var samples []time.Duration
	for i := 0; i < 20; i++ {
		for _, target := range queries {
			rr := httptest.NewRecorder()
			start := time.Now()
			server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
			samples = append(samples, time.Since(start))
			if rr.Code != http.StatusOK {
				t.Fatalf("%s: unexpected status %d", target, rr.Code)
			}
		}
	}
	if p95 := percentile95(samples); p95 > 500*time.Millisecond {
		t.Fatalf("view latency regression: p95=%s threshold=500ms", p95)
	}
}

func BenchmarkDeriveClamped(b *testing.B) {
	records := syntheticCatalog(50000)
	q := catalog.DefaultViewQuery().WithSearchTerm("a").WithSort(catalog.SortByDistance, catalog.Ascending)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = catalog.DeriveClamped(records, q)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
