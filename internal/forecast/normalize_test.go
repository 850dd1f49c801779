package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alimentação", "alimentacao"},
		{"SAÚDE", "saude"},
		{"  Moradia  ", "moradia"},
		{"transporte", "transporte"},
		{"Renda", "renda"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FoldName(tt.in), "FoldName(%q)", tt.in)
	}
}
