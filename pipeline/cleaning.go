package pipeline

import (
	"fmt"
	"math"
	"sync"
)

// CleaningRule checks one dataset row.
type CleaningRule interface {
	Apply(columns []string, row []float32, label float32) error
	Name() string
}

// QualityIssue records why a row was rejected.
type QualityIssue struct {
	Rule    string `json:"rule"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// CleaningPolicy decides what happens to a row that fails a rule.
type CleaningPolicy int

const (
	// PolicyReject fails the whole dataset on the first bad row.
	PolicyReject CleaningPolicy = iota
	// PolicyDrop removes bad rows and keeps the rest in order.
	PolicyDrop
)

// CleaningStats counts rows seen by a DataCleaner.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
}

// DataCleaner applies rules to every row of a dataset.
type DataCleaner struct {
	rules  []CleaningRule
	policy CleaningPolicy

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner returns a cleaner with the default rules.
func NewDataCleaner(policy CleaningPolicy) *DataCleaner {
	dc := &DataCleaner{
		policy: policy,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	dc.AddRule(NewFiniteValueRule())
	dc.AddRule(NewNonNegativeRule("quantity", "price"))
	dc.AddRule(NewOneHotRule(StateColumns()...))
	return dc
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean returns a new dataset holding the rows that passed every rule. With
// PolicyReject the first issue is returned as an error instead.
func (dc *DataCleaner) Clean(ds *Dataset) (*Dataset, []QualityIssue, error) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	cleaned := &Dataset{Columns: ds.Columns}
	var issues []QualityIssue
	for i, row := range ds.Features {
		dc.stats.TotalProcessed++

		var rowIssues []QualityIssue
		for _, rule := range dc.rules {
			if err := rule.Apply(ds.Columns, row, ds.Labels[i]); err != nil {
				rowIssues = append(rowIssues, QualityIssue{Rule: rule.Name(), Row: i, Message: err.Error()})
				dc.stats.Issues[rule.Name()]++
			}
		}
		if len(rowIssues) > 0 {
			dc.stats.Rejected++
			if dc.policy == PolicyReject {
				first := rowIssues[0]
				return nil, rowIssues, fmt.Errorf("row %d failed %s: %s", first.Row, first.Rule, first.Message)
			}
			issues = append(issues, rowIssues...)
			continue
		}
		dc.stats.Passed++
		cleaned.Features = append(cleaned.Features, row)
		cleaned.Labels = append(cleaned.Labels, ds.Labels[i])
	}
	return cleaned, issues, nil
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// FiniteValueRule rejects NaN and ±Inf in features and label.
type FiniteValueRule struct{}

func NewFiniteValueRule() *FiniteValueRule {
	return &FiniteValueRule{}
}

func (r *FiniteValueRule) Name() string {
	return "finite_value"
}

func (r *FiniteValueRule) Apply(columns []string, row []float32, label float32) error {
	for j, v := range row {
		if !finite(v) {
			return fmt.Errorf("%s is %v", columns[j], v)
		}
	}
	if !finite(label) {
		return fmt.Errorf("label is %v", label)
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// NonNegativeRule rejects negative values in the named columns.
type NonNegativeRule struct {
	columns map[string]bool
}

func NewNonNegativeRule(columns ...string) *NonNegativeRule {
	r := &NonNegativeRule{columns: make(map[string]bool, len(columns))}
	for _, c := range columns {
		r.columns[c] = true
	}
	return r
}

func (r *NonNegativeRule) Name() string {
	return "non_negative"
}

func (r *NonNegativeRule) Apply(columns []string, row []float32, _ float32) error {
	for j, name := range columns {
		if r.columns[name] && row[j] < 0 {
			return fmt.Errorf("%s is negative: %v", name, row[j])
		}
	}
	return nil
}

// OneHotRule requires the named indicator columns to hold only 0 or 1 with
// at most one 1 set. Columns absent from the dataset are ignored.
type OneHotRule struct {
	group map[string]bool
}

func NewOneHotRule(columns ...string) *OneHotRule {
	r := &OneHotRule{group: make(map[string]bool, len(columns))}
	for _, c := range columns {
		r.group[c] = true
	}
	return r
}

func (r *OneHotRule) Name() string {
	return "one_hot"
}

func (r *OneHotRule) Apply(columns []string, row []float32, _ float32) error {
	set := ""
	for j, name := range columns {
		if !r.group[name] {
			continue
		}
		switch row[j] {
		case 0:
		case 1:
			if set != "" {
				return fmt.Errorf("both %s and %s are set", set, name)
			}
			set = name
		default:
			return fmt.Errorf("%s is %v, want 0 or 1", name, row[j])
		}
	}
	return nil
}
