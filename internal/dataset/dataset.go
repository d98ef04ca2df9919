// Package dataset implements the seller-analytics tables behind the tool
// registry: a deterministic seeded generator plus the aggregation queries.
// Same (seed, start, days) always produces the same rows.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// Metric names a measurable quantity over the dataset.
type Metric string

const (
	MetricSales          Metric = "sales"
	MetricUnits          Metric = "units"
	MetricSessions       Metric = "sessions"
	MetricConversionRate Metric = "conversion_rate"
)

// ValidMetric reports whether m is one of the four supported metrics.
func ValidMetric(m Metric) bool {
	switch m {
	case MetricSales, MetricUnits, MetricSessions, MetricConversionRate:
		return true
	}
	return false
}

// Product is one catalog row.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// DailyStat is one (product, day) row of the orders/traffic tables.
type DailyStat struct {
	Date     string  `json:"date"`
	Sessions int     `json:"sessions"`
	Units    int     `json:"units"`
	Sales    float64 `json:"sales"`
}

// TopRow is one ranked row of a top-products aggregation.
type TopRow struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Metric      Metric  `json:"metric"`
	MetricValue float64 `json:"metricValue"`
}

// Point is a single daily metric value.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Series is the daily trajectory of one product.
type Series struct {
	ProductID string  `json:"productId"`
	Points    []Point `json:"points"`
}

// Changes summarizes the move between the first and last point of a series.
type Changes struct {
	StartValue float64 `json:"startValue"`
	EndValue   float64 `json:"endValue"`
	AbsChange  float64 `json:"absChange"`
	PctChange  float64 `json:"pctChange"`
}

// Dataset holds the generated tables in memory. All query methods are
// read-only and safe for concurrent use.
type Dataset struct {
	products []Product
	stats    map[string][]DailyStat // productID -> rows ordered by date
	start    time.Time
	days     int
}

const isoDate = "2006-01-02"

var catalog = []struct {
	name     string
	category string
	price    float64
	traffic  float64 // relative daily session volume
}{
	{"Aurora Desk Lamp", "home", 42.50, 1.3},
	{"Juniper Throw Blanket", "home", 58.00, 1.1},
	{"Basalt Cast-Iron Pan", "home", 74.00, 0.9},
	{"Cedar Spice Rack", "home", 27.00, 0.6},
	{"Orbit Wireless Earbuds", "electronics", 89.00, 1.8},
	{"Pulse Fitness Tracker", "electronics", 119.00, 1.5},
	{"Nimbus Phone Stand", "electronics", 19.50, 1.2},
	{"Volt Travel Charger", "electronics", 34.00, 1.4},
	{"Drift USB Microphone", "electronics", 129.00, 0.8},
	{"Sable Leather Wallet", "accessories", 49.00, 1.0},
	{"Meridian Sunglasses", "accessories", 65.00, 1.1},
	{"Atlas Canvas Tote", "accessories", 32.00, 0.9},
	{"Harbor Wool Beanie", "accessories", 24.00, 0.7},
	{"Glacier Water Bottle", "sports", 29.00, 1.6},
	{"Summit Yoga Mat", "sports", 45.00, 1.2},
	{"Tempo Jump Rope", "sports", 18.00, 0.8},
	{"Ridge Resistance Bands", "sports", 26.00, 1.0},
	{"Petal Face Serum", "beauty", 38.00, 1.3},
	{"Dune Clay Mask", "beauty", 22.00, 1.0},
	{"Lumen Lip Balm Trio", "beauty", 15.00, 0.9},
	{"Willow Hair Oil", "beauty", 31.00, 0.8},
	{"Comet Building Blocks", "toys", 54.00, 1.1},
	{"Fable Plush Fox", "toys", 28.00, 1.2},
	{"Rocket Puzzle Cube", "toys", 16.00, 0.9},
}

// Generate builds the dataset covering `days` days starting at startDate.
func Generate(seed int64, startDate string, days int) (*Dataset, error) {
	start, err := time.ParseInLocation(isoDate, startDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", startDate, err)
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	rng := rand.New(rand.NewSource(seed))
	ds := &Dataset{
		stats: make(map[string][]DailyStat, len(catalog)),
		start: start,
		days:  days,
	}

	for i, c := range catalog {
		p := Product{
			ID:       fmt.Sprintf("P%03d", i+1),
			Name:     c.name,
			Category: c.category,
		}
		ds.products = append(ds.products, p)

		baseSessions := 40 + rng.Float64()*160*c.traffic
		baseCVR := 0.02 + rng.Float64()*0.06
		trend := (rng.Float64() - 0.5) * 0.004 // slow drift per day

		rows := make([]DailyStat, 0, days)
		for d := 0; d < days; d++ {
			day := start.AddDate(0, 0, d)
			weekday := 1.0
			switch day.Weekday() {
			case time.Saturday, time.Sunday:
				weekday = 1.25
			case time.Monday:
				weekday = 0.9
			}
			noise := 0.75 + rng.Float64()*0.5
			sessions := int(math.Round(baseSessions * weekday * noise * (1 + trend*float64(d))))
			if sessions < 0 {
				sessions = 0
			}
			cvr := baseCVR * (0.8 + rng.Float64()*0.4)
			units := int(math.Round(float64(sessions) * cvr))
			sales := roundCents(float64(units) * c.price)

			rows = append(rows, DailyStat{
				Date:     day.Format(isoDate),
				Sessions: sessions,
				Units:    units,
				Sales:    sales,
			})
		}
		ds.stats[p.ID] = rows
	}

	return ds, nil
}

// ListProducts returns catalog rows, optionally filtered by category.
func (ds *Dataset) ListProducts(category string, limit int) []Product {
	out := make([]Product, 0, len(ds.products))
	for _, p := range ds.products {
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// TopProducts aggregates metric over [start, end] per product and returns the
// top rows sorted descending by value. Ties break by product id so ordering
// is stable across runs.
func (ds *Dataset) TopProducts(metric Metric, startDate, endDate string, limit int) []TopRow {
	rows := make([]TopRow, 0, len(ds.products))
	for _, p := range ds.products {
		value, any := ds.aggregate(p.ID, metric, startDate, endDate)
		if !any {
			continue
		}
		rows = append(rows, TopRow{
			ProductID:   p.ID,
			ProductName: p.Name,
			Metric:      metric,
			MetricValue: value,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].MetricValue != rows[j].MetricValue {
			return rows[i].MetricValue > rows[j].MetricValue
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// Timeseries returns one daily series per requested product over the range.
// Products with no rows in range are omitted.
func (ds *Dataset) Timeseries(metric Metric, productIDs []string, startDate, endDate string) []Series {
	out := make([]Series, 0, len(productIDs))
	for _, id := range productIDs {
		var points []Point
		for _, row := range ds.stats[id] {
			if row.Date < startDate || row.Date > endDate {
				continue
			}
			points = append(points, Point{Date: row.Date, Value: metricValue(row, metric)})
		}
		if len(points) == 0 {
			continue
		}
		out = append(out, Series{ProductID: id, Points: points})
	}
	return out
}

// Benchmark returns the category-wide average of the metric over the range:
// the mean of per-product aggregates, except conversion_rate which is the
// ratio of category-wide sums.
func (ds *Dataset) Benchmark(metric Metric, category, startDate, endDate string) float64 {
	if metric == MetricConversionRate {
		var units, sessions float64
		for _, p := range ds.products {
			if p.Category != category {
				continue
			}
			u, _ := ds.aggregate(p.ID, MetricUnits, startDate, endDate)
			s, _ := ds.aggregate(p.ID, MetricSessions, startDate, endDate)
			units += u
			sessions += s
		}
		if sessions == 0 {
			return 0
		}
		return units / sessions
	}

	var total float64
	var n int
	for _, p := range ds.products {
		if p.Category != category {
			continue
		}
		v, any := ds.aggregate(p.ID, metric, startDate, endDate)
		if !any {
			continue
		}
		total += v
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// ComputeChanges summarizes the first-to-last move of a point series.
// PctChange is 1.0 when the series starts at zero and ends nonzero, and 0
// when both ends are zero.
func ComputeChanges(points []Point) (Changes, error) {
	if len(points) < 2 {
		return Changes{}, fmt.Errorf("compute_changes requires at least 2 points, got %d", len(points))
	}
	start := points[0].Value
	end := points[len(points)-1].Value
	ch := Changes{
		StartValue: start,
		EndValue:   end,
		AbsChange:  end - start,
	}
	switch {
	case start == 0 && end == 0:
		ch.PctChange = 0
	case start == 0:
		ch.PctChange = 1.0
	default:
		ch.PctChange = (end - start) / start
	}
	return ch, nil
}

// aggregate sums (or ratios, for conversion_rate) a product's metric over
// the inclusive date range. The bool reports whether any row fell in range.
func (ds *Dataset) aggregate(productID string, metric Metric, startDate, endDate string) (float64, bool) {
	var sessions, units, sales float64
	var any bool
	for _, row := range ds.stats[productID] {
		if row.Date < startDate || row.Date > endDate {
			continue
		}
		any = true
		sessions += float64(row.Sessions)
		units += float64(row.Units)
		sales += row.Sales
	}
	if !any {
		return 0, false
	}
	switch metric {
	case MetricSales:
		return roundCents(sales), true
	case MetricUnits:
		return units, true
	case MetricSessions:
		return sessions, true
	case MetricConversionRate:
		if sessions == 0 {
			return 0, true
		}
		return units / sessions, true
	}
	return 0, false
}

func metricValue(row DailyStat, metric Metric) float64 {
	switch metric {
	case MetricSales:
		return row.Sales
	case MetricUnits:
		return float64(row.Units)
	case MetricSessions:
		return float64(row.Sessions)
	case MetricConversionRate:
		if row.Sessions == 0 {
			return 0
		}
		return float64(row.Units) / float64(row.Sessions)
	}
	return 0
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
