package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{"valid value", "test", false},
		{"empty string", "", true},
		{"only spaces", "   ", true},
		{"padded content", "  test  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator().Required("field", tt.value)
			assert.Equal(t, tt.wantError, v.Errors().HasErrors())
		})
	}
}

func TestValidator_PlayerID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"well formed", "Player#1234", false},
		{"missing discriminator", "Player", true},
		{"short discriminator", "Player#12", true},
		{"with underscore", "My_Handle#0007", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator().PlayerID("id", tt.value)
			assert.Equal(t, tt.wantErr, v.Errors().HasErrors())
		})
	}
}

func TestValidator_SeasonID(t *testing.T) {
	for _, s := range []string{"s6", "ob", "cb1"} {
		assert.True(t, NewValidator().SeasonID("season", s).IsValid(), s)
	}
	assert.False(t, NewValidator().SeasonID("season", "season7").IsValid())
}

func TestValidator_Range(t *testing.T) {
	// /lb <id> <days>: 0 and 31 are out of range, 1..30 accepted.
	assert.False(t, NewValidator().Range("days", 0, 1, 30).IsValid())
	assert.False(t, NewValidator().Range("days", 31, 1, 30).IsValid())
	assert.True(t, NewValidator().Range("days", 1, 1, 30).IsValid())
	assert.True(t, NewValidator().Range("days", 30, 1, 30).IsValid())
}

func TestValidator_ChainAccumulatesAllErrors(t *testing.T) {
	v := NewValidator().
		Required("id", "").
		PlayerID("id", "").
		Range("days", 99, 1, 30)
	assert.True(t, v.Errors().HasErrors())
	assert.GreaterOrEqual(t, len(v.Errors()), 2)
}
