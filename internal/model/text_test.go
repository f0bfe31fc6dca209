package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText_TrimsAndComposes(t *testing.T) {
	// "e" + COMBINING ACUTE ACCENT composes to U+00E9
	decomposed := "  Jose\u0301  "
	assert.Equal(t, "Jos\u00e9", NormalizeText(decomposed))
}

func TestNormalizeText_Empty(t *testing.T) {
	assert.Equal(t, "", NormalizeText(" \t\n "))
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0000", true},
		{"0420", true},
		{"9999", true},
		{"123", false},
		{"12345", false},
		{"12a4", false},
		{"", false},
		{"١٢٣٤", false}, // non-ASCII digits
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCode(tt.in))
		})
	}
}

func TestRole_Recognized(t *testing.T) {
	assert.True(t, RoleHermit.Recognized())
	assert.True(t, RoleInitiate.Recognized())
	assert.False(t, RoleNone.Recognized())
}

func TestAccessCode_Status(t *testing.T) {
	assert.Equal(t, "ACTIVE", AccessCode{Active: true}.Status())
	assert.Equal(t, "RETIRED", AccessCode{}.Status())
}

func TestMessageRef_IsZero(t *testing.T) {
	assert.True(t, MessageRef{}.IsZero())
	assert.False(t, MessageRef{Chat: 1, MessageID: 2}.IsZero())
}
