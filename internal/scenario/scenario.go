// Package scenario loads scripted multi-step scenarios, runs them across
// memory configurations, and aggregates the comparison report.
package scenario

import (
	"fmt"
	"os"
	"regexp"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// Defaults for the generated dataset when a scenario does not pin them.
const (
	DefaultDataDays = 120
)

// Step is one scripted query.
type Step struct {
	ID    string `json:"id,omitempty"`
	Query string `json:"query"`
}

// Scenario is a scripted multi-step session.
type Scenario struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Seed  int64  `json:"seed"`
	Today string `json:"today"`
	Steps []Step `json:"steps"`

	// DataStart and DataDays bound the generated dataset. When DataStart is
	// empty the window ends the day before Today.
	DataStart string `json:"dataStart,omitempty"`
	DataDays  int    `json:"dataDays,omitempty"`
}

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Load reads and validates a scenario file. The parser accepts JSON5 so
// hand-written scenarios may carry comments and trailing commas.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := json5.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks the scenario invariants.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !isoDatePattern.MatchString(s.Today) {
		return fmt.Errorf("today %q is not an ISO date", s.Today)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if step.Query == "" {
			return fmt.Errorf("step %d has no query", i)
		}
	}
	if s.DataStart != "" && !isoDatePattern.MatchString(s.DataStart) {
		return fmt.Errorf("dataStart %q is not an ISO date", s.DataStart)
	}
	if s.DataDays < 0 {
		return fmt.Errorf("dataDays must not be negative")
	}
	return nil
}

// DataWindow resolves the dataset generation window: the configured window,
// or the DefaultDataDays days before Today (Today itself is not included).
func (s *Scenario) DataWindow() (start string, days int, err error) {
	days = s.DataDays
	if days == 0 {
		days = DefaultDataDays
	}
	if s.DataStart != "" {
		return s.DataStart, days, nil
	}
	today, err := time.ParseInLocation("2006-01-02", s.Today, time.UTC)
	if err != nil {
		return "", 0, fmt.Errorf("parse today: %w", err)
	}
	return today.AddDate(0, 0, -days).Format("2006-01-02"), days, nil
}
