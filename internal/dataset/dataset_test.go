package dataset

import (
	"reflect"
	"testing"
)

func mustGenerate(t *testing.T) *Dataset {
	t.Helper()
	ds, err := Generate(42, "2025-10-01", 120)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	return ds
}

func TestGenerate(t *testing.T) {
	t.Run("deterministic under the same seed", func(t *testing.T) {
		a := mustGenerate(t)
		b := mustGenerate(t)
		ra := a.TopProducts(MetricSales, "2026-01-01", "2026-01-31", 10)
		rb := b.TopProducts(MetricSales, "2026-01-01", "2026-01-31", 10)
		if !reflect.DeepEqual(ra, rb) {
			t.Error("same seed must produce identical aggregates")
		}
	})

	t.Run("different seeds diverge", func(t *testing.T) {
		a := mustGenerate(t)
		b, err := Generate(7, "2025-10-01", 120)
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		ra := a.TopProducts(MetricSales, "2026-01-01", "2026-01-31", 10)
		rb := b.TopProducts(MetricSales, "2026-01-01", "2026-01-31", 10)
		if reflect.DeepEqual(ra, rb) {
			t.Error("different seeds should not produce identical aggregates")
		}
	})

	t.Run("invalid inputs", func(t *testing.T) {
		if _, err := Generate(42, "bad-date", 10); err == nil {
			t.Error("expected error for bad start date")
		}
		if _, err := Generate(42, "2025-10-01", 0); err == nil {
			t.Error("expected error for zero days")
		}
	})
}

func TestListProducts(t *testing.T) {
	ds := mustGenerate(t)

	t.Run("category filter", func(t *testing.T) {
		for _, p := range ds.ListProducts("beauty", 0) {
			if p.Category != "beauty" {
				t.Errorf("product %s has category %s", p.ID, p.Category)
			}
		}
	})

	t.Run("limit", func(t *testing.T) {
		if got := len(ds.ListProducts("", 5)); got != 5 {
			t.Errorf("len = %d, want 5", got)
		}
	})
}

func TestTopProducts(t *testing.T) {
	ds := mustGenerate(t)

	t.Run("sorted descending", func(t *testing.T) {
		rows := ds.TopProducts(MetricSales, "2026-01-01", "2026-01-31", 10)
		if len(rows) != 10 {
			t.Fatalf("len = %d, want 10", len(rows))
		}
		for i := 1; i < len(rows); i++ {
			if rows[i].MetricValue > rows[i-1].MetricValue {
				t.Errorf("rows not sorted at %d: %f > %f", i, rows[i].MetricValue, rows[i-1].MetricValue)
			}
		}
	})

	t.Run("out-of-range window is empty", func(t *testing.T) {
		rows := ds.TopProducts(MetricSales, "2030-01-01", "2030-01-31", 10)
		if len(rows) != 0 {
			t.Errorf("len = %d, want 0", len(rows))
		}
	})

	t.Run("conversion rate stays in unit range", func(t *testing.T) {
		for _, row := range ds.TopProducts(MetricConversionRate, "2026-01-01", "2026-01-31", 50) {
			if row.MetricValue < 0 || row.MetricValue > 1 {
				t.Errorf("%s conversion = %f", row.ProductID, row.MetricValue)
			}
		}
	})
}

func TestTimeseries(t *testing.T) {
	ds := mustGenerate(t)

	t.Run("one series per known product, daily points in range", func(t *testing.T) {
		// The 120-day window starting 2025-10-01 ends 2026-01-28, so January
		// carries 28 rows.
		series := ds.Timeseries(MetricSessions, []string{"P001", "P002"}, "2026-01-01", "2026-01-31")
		if len(series) != 2 {
			t.Fatalf("series = %d, want 2", len(series))
		}
		for _, s := range series {
			if len(s.Points) != 28 {
				t.Errorf("%s has %d points, want 28", s.ProductID, len(s.Points))
			}
			for _, pt := range s.Points {
				if pt.Date < "2026-01-01" || pt.Date > "2026-01-31" {
					t.Errorf("%s point %s out of range", s.ProductID, pt.Date)
				}
			}
		}
	})

	t.Run("unknown products are omitted", func(t *testing.T) {
		series := ds.Timeseries(MetricSessions, []string{"P001", "NOPE"}, "2026-01-01", "2026-01-31")
		if len(series) != 1 {
			t.Errorf("series = %d, want 1", len(series))
		}
	})
}

func TestBenchmark(t *testing.T) {
	ds := mustGenerate(t)

	t.Run("positive for populated category", func(t *testing.T) {
		if avg := ds.Benchmark(MetricSales, "electronics", "2026-01-01", "2026-01-31"); avg <= 0 {
			t.Errorf("benchmark = %f, want > 0", avg)
		}
	})

	t.Run("zero for unknown category", func(t *testing.T) {
		if avg := ds.Benchmark(MetricSales, "groceries", "2026-01-01", "2026-01-31"); avg != 0 {
			t.Errorf("benchmark = %f, want 0", avg)
		}
	})
}

func TestComputeChanges(t *testing.T) {
	tests := []struct {
		name    string
		points  []Point
		want    Changes
		wantErr bool
	}{
		{
			name:   "drop",
			points: []Point{{Date: "2026-01-01", Value: 100}, {Date: "2026-01-02", Value: 60}},
			want:   Changes{StartValue: 100, EndValue: 60, AbsChange: -40, PctChange: -0.4},
		},
		{
			name:   "zero start nonzero end",
			points: []Point{{Value: 0}, {Value: 5}},
			want:   Changes{StartValue: 0, EndValue: 5, AbsChange: 5, PctChange: 1.0},
		},
		{
			name:   "both zero",
			points: []Point{{Value: 0}, {Value: 0}},
			want:   Changes{},
		},
		{
			name:    "too few points",
			points:  []Point{{Value: 1}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeChanges(tt.points)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ComputeChanges error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputeChanges = %+v, want %+v", got, tt.want)
			}
		})
	}
}
