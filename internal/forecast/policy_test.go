package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	p, err := LoadEmbedded()
	require.NoError(t, err)

	assert.Equal(t, 3, p.HistoryMonths)
	assert.Equal(t, 0.30, p.TrendClamp)
	assert.Equal(t, 3, p.SparseObservationThreshold)
	assert.Equal(t, 0.8, p.SparseMaxFactor)
	assert.Equal(t, 0.8, p.AlertThreshold)
	assert.Equal(t, 0.05, p.EssentialSavingsRate)
	assert.Equal(t, 0.15, p.DefaultSavingsRate)
}

func TestPolicyCategoryMatching(t *testing.T) {
	p, err := LoadEmbedded()
	require.NoError(t, err)

	// Case- and accent-insensitive.
	assert.True(t, p.Excluded("Renda"))
	assert.True(t, p.Excluded("RECEITAS"))
	assert.False(t, p.Excluded("lazer"))

	assert.True(t, p.Essential("Alimentação"))
	assert.True(t, p.Essential("alimentacao"))
	assert.True(t, p.Essential("SAÚDE"))
	assert.False(t, p.Essential("viagens"))

	assert.Equal(t, 0.05, p.SavingsRate("moradia"))
	assert.Equal(t, 0.15, p.SavingsRate("viagens"))
}

func TestNewPolicyValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "zero history months",
			yaml: "history_months: 0\ntrend_clamp: 0.3\nalert_threshold: 0.8\n",
		},
		{
			name: "trend clamp out of range",
			yaml: "history_months: 3\ntrend_clamp: 1.5\nalert_threshold: 0.8\n",
		},
		{
			name: "alert threshold zero",
			yaml: "history_months: 3\ntrend_clamp: 0.3\nalert_threshold: 0\n",
		},
		{
			name: "malformed yaml",
			yaml: "history_months: [oops\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/does/not/exist.yaml")
	assert.Error(t, err)
}
