// Command validate performs integrity checks on a summary database written
// by geodata-etl: coverage per province and source, value ranges, internal
// consistency between related metrics, and record ID determinism.
//
// Usage:
//
//	go run ./cmd/validate -db data/mock/summaries.db -provinces istanbul,ankara
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// dataset holds the stored records keyed by province and source.
type dataset map[string]map[domain.Source][]domain.SummaryRecord

func main() {
	dbPath := flag.String("db", "", "path to the summary SQLite database")
	provinces := flag.String("provinces", "", "comma-separated provinces to validate")
	sources := flag.String("sources", "", "comma-separated sources expected per province (default: all)")
	flag.Parse()

	if *dbPath == "" || *provinces == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dbPath, splitList(*provinces), splitList(*sources)); code != 0 {
		os.Exit(code)
	}
}

func run(dbPath string, provinces, sourceNames []string) int {
	fmt.Println("=== Provincial Summary Validation ===")
	fmt.Println()

	srcs := pipeline.AllSources
	if len(sourceNames) > 0 {
		srcs = nil
		for _, name := range sourceNames {
			src, err := domain.ParseSource(name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
				return 1
			}
			srcs = append(srcs, src)
		}
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(ctx, dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	data := dataset{}
	total := 0
	for _, province := range provinces {
		province = domain.NormalizeName(province)
		data[province] = map[domain.Source][]domain.SummaryRecord{}
		for _, src := range srcs {
			records, err := store.Summaries(ctx, province, src)
			if err != nil {
				fmt.Fprintf(os.Stderr, "FATAL: load %s/%s: %v\n", province, src, err)
				return 1
			}
			data[province][src] = records
			total += len(records)
		}
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateCoverage(data),
		validateRanges(data),
		validateConsistency(data),
		validateIDs(data),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d across %d provinces and %d sources\n", total, len(provinces), len(srcs))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// index maps metric|period to value.
func index(records []domain.SummaryRecord) map[string]float64 {
	out := make(map[string]float64, len(records))
	for _, r := range records {
		out[r.Metric+"|"+r.Period] = r.Value
	}
	return out
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// ── Phase 1: Coverage ──
// Every province has at least one record per expected source.

func validateCoverage(data dataset) *phase {
	p := &phase{name: "Phase 1: Coverage (province x source)"}
	for province, bySource := range data {
		for src, records := range bySource {
			if len(records) == 0 {
				p.errorf("%s/%s: no records", province, src)
			}
		}
	}
	return p
}

// ── Phase 2: Value ranges ──
// Metric values fall in their physical ranges.

type valueRange struct {
	lo, hi float64
}

var ranges = map[string]valueRange{
	pipeline.MetricUrbanShare:        {0, 100},
	pipeline.MetricMeanRadiance:      {0, 63},
	pipeline.MetricSettlementPop:     {0, math.Inf(1)},
	pipeline.MetricMeanLST:           {200, 350},
	pipeline.MetricMeanLSTUrban:      {200, 350},
	pipeline.MetricMeanLSTRural:      {200, 350},
	pipeline.MetricHeatIsland:        {-30, 30},
	pipeline.MetricPopulation:        {0, math.Inf(1)},
	pipeline.MetricPopulationMillion: {0, 100},
	pipeline.MetricDensity:           {0, 100_000},
}

func validateRanges(data dataset) *phase {
	p := &phase{name: "Phase 2: Value Ranges"}
	for province, bySource := range data {
		for src, records := range bySource {
			for _, r := range records {
				if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
					p.errorf("%s/%s %s %s: non-finite value", province, src, r.Metric, r.Period)
					continue
				}
				if strings.HasPrefix(r.Metric, "cells_") && (r.Value < 0 || r.Value != math.Trunc(r.Value)) {
					p.errorf("%s/%s %s %s: cell count %v is not a non-negative integer", province, src, r.Metric, r.Period, r.Value)
				}
				rg, ok := ranges[r.Metric]
				if !ok {
					continue
				}
				if r.Value < rg.lo || r.Value > rg.hi {
					p.errorf("%s/%s %s %s: %v outside [%v, %v]", province, src, r.Metric, r.Period, r.Value, rg.lo, rg.hi)
				}
			}
		}
	}
	return p
}

// ── Phase 3: Consistency ──
// Derived metrics agree with the metrics they are derived from.

func validateConsistency(data dataset) *phase {
	p := &phase{name: "Phase 3: Metric Consistency"}
	classes := domain.DefaultClassIndex().BaseClasses()

	for province, bySource := range data {
		pop := index(bySource[domain.SourcePopulation])
		for key, v := range pop {
			metric, period, _ := strings.Cut(key, "|")
			if metric != pipeline.MetricPopulation {
				continue
			}
			if m, ok := pop[pipeline.MetricPopulationMillion+"|"+period]; ok && !nearlyEqual(m*1e6, v) {
				p.errorf("%s population %s: %v persons but %v million", province, period, v, m)
			}
		}

		for _, r := range bySource[domain.SourceCORINE] {
			if r.Metric != pipeline.MetricUrbanShare {
				continue
			}
			lu := index(bySource[domain.SourceCORINE])
			var all float64
			for _, c := range classes {
				all += lu["cells_"+string(c)+"|"+r.Period]
			}
			urban := lu["cells_"+string(domain.ClassUrban)+"|"+r.Period]
			if all > 0 && !nearlyEqual(urban/all*100, r.Value) {
				p.errorf("%s urban share %s: %v but cell counts give %v", province, r.Period, r.Value, urban/all*100)
			}
		}

		lst := index(bySource[domain.SourceMODIS])
		for _, r := range bySource[domain.SourceMODIS] {
			if r.Metric != pipeline.MetricHeatIsland {
				continue
			}
			urban, uok := lst[pipeline.MetricMeanLSTUrban+"|"+r.Period]
			rural, rok := lst[pipeline.MetricMeanLSTRural+"|"+r.Period]
			if !uok || !rok {
				p.errorf("%s heat island %s: urban or rural mean missing", province, r.Period)
				continue
			}
			if !nearlyEqual(urban-rural, r.Value) {
				p.errorf("%s heat island %s: %v but urban-rural is %v", province, r.Period, r.Value, urban-rural)
			}
		}
	}
	return p
}

// ── Phase 4: IDs ──
// Record IDs are the deterministic hash of their natural key.

func validateIDs(data dataset) *phase {
	p := &phase{name: "Phase 4: Record IDs"}
	seen := make(map[string]string)
	for _, bySource := range data {
		for _, records := range bySource {
			for _, r := range records {
				want, ok := domain.NewSummaryRecord(r.RunID, r.Province, r.Source, r.Metric, r.Period, r.Value, r.Unit)
				if !ok {
					continue
				}
				if want.ID != r.ID {
					p.errorf("%s/%s %s %s: id %s, expected %s", r.Province, r.Source, r.Metric, r.Period, r.ID, want.ID)
				}
				key := fmt.Sprintf("%s|%s|%s|%s", r.Province, r.Source, r.Metric, r.Period)
				if prev, dup := seen[r.ID]; dup && prev != key {
					p.errorf("id %s shared by %s and %s", r.ID, prev, key)
				}
				seen[r.ID] = key
			}
		}
	}
	return p
}
