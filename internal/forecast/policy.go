// Package forecast projects next-period budget limits from historical
// expense data, with a confidence score per category.
package forecast

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var embeddedPolicy []byte

// Policy holds the forecasting tunables.
//
// Policies should be created via LoadEmbedded or LoadFromFile; both validate
// every invariant. Direct struct construction bypasses validation.
type Policy struct {
	HistoryMonths              int      `yaml:"history_months"`
	TrendClamp                 float64  `yaml:"trend_clamp"`
	SparseObservationThreshold int      `yaml:"sparse_observation_threshold"`
	SparseMaxFactor            float64  `yaml:"sparse_max_factor"`
	AlertThreshold             float64  `yaml:"alert_threshold"`
	ExcludedCategories         []string `yaml:"excluded_categories"`
	EssentialCategories        []string `yaml:"essential_categories"`
	EssentialSavingsRate       float64  `yaml:"essential_savings_rate"`
	DefaultSavingsRate         float64  `yaml:"default_savings_rate"`

	excluded  map[string]bool
	essential map[string]bool
}

// NewPolicy parses and validates a policy from YAML data.
func NewPolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML policy (check syntax, indentation, and field names): %w", err)
	}

	if p.HistoryMonths < 1 {
		return nil, fmt.Errorf("history_months must be >= 1, got %d", p.HistoryMonths)
	}
	if p.TrendClamp < 0 || p.TrendClamp > 1 {
		return nil, fmt.Errorf("trend_clamp must be in [0,1], got %f", p.TrendClamp)
	}
	if p.SparseObservationThreshold < 0 {
		return nil, fmt.Errorf("sparse_observation_threshold must be >= 0, got %d", p.SparseObservationThreshold)
	}
	if p.SparseMaxFactor < 0 || p.SparseMaxFactor > 1 {
		return nil, fmt.Errorf("sparse_max_factor must be in [0,1], got %f", p.SparseMaxFactor)
	}
	if p.AlertThreshold <= 0 || p.AlertThreshold > 1 {
		return nil, fmt.Errorf("alert_threshold must be in (0,1], got %f", p.AlertThreshold)
	}
	if p.EssentialSavingsRate < 0 || p.EssentialSavingsRate > 1 {
		return nil, fmt.Errorf("essential_savings_rate must be in [0,1], got %f", p.EssentialSavingsRate)
	}
	if p.DefaultSavingsRate < 0 || p.DefaultSavingsRate > 1 {
		return nil, fmt.Errorf("default_savings_rate must be in [0,1], got %f", p.DefaultSavingsRate)
	}

	p.excluded = make(map[string]bool, len(p.ExcludedCategories))
	for _, name := range p.ExcludedCategories {
		folded := FoldName(name)
		if folded == "" {
			return nil, fmt.Errorf("excluded category %q folds to an empty name", name)
		}
		p.excluded[folded] = true
	}
	p.essential = make(map[string]bool, len(p.EssentialCategories))
	for _, name := range p.EssentialCategories {
		folded := FoldName(name)
		if folded == "" {
			return nil, fmt.Errorf("essential category %q folds to an empty name", name)
		}
		p.essential[folded] = true
	}

	return &p, nil
}

// LoadEmbedded loads the embedded policy.yaml file.
func LoadEmbedded() (*Policy, error) {
	p, err := NewPolicy(embeddedPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded policy (possible binary corruption): %w", err)
	}
	return p, nil
}

// LoadFromFile loads a policy from a filesystem path.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	p, err := NewPolicy(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy from %q: %w", path, err)
	}
	return p, nil
}

// Excluded reports whether the category name never receives a budget.
func (p *Policy) Excluded(categoryName string) bool {
	return p.excluded[FoldName(categoryName)]
}

// Essential reports whether the category gets the lower savings rate.
func (p *Policy) Essential(categoryName string) bool {
	return p.essential[FoldName(categoryName)]
}

// SavingsRate returns the suggested savings rate for a category.
func (p *Policy) SavingsRate(categoryName string) float64 {
	if p.Essential(categoryName) {
		return p.EssentialSavingsRate
	}
	return p.DefaultSavingsRate
}
