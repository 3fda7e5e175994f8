package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePinned(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: []string{}},
		{name: "first and last collapse", in: []string{"firstName", "lastName", "email"}, want: []string{"fullName", "email"}},
		{name: "position of first name part", in: []string{"email", "lastName", "phoneNumber", "firstName"}, want: []string{"email", "fullName", "phoneNumber"}},
		{name: "existing fullName wins", in: []string{"fullName", "firstName"}, want: []string{"fullName"}},
		{name: "duplicates and blanks", in: []string{"email", "", "email", "aadhaar"}, want: []string{"email", "aadhaar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePinned(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizePinned(got), "normalization must be idempotent")
		})
	}
}

func TestFullNameAndPinnedValue(t *testing.T) {
	v := map[string]string{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com"}

	assert.Equal(t, "Ada Lovelace", FullName(v))
	assert.Equal(t, "Ada", FullName(map[string]string{"firstName": "Ada"}))
	assert.Equal(t, "Lovelace", FullName(map[string]string{"lastName": "Lovelace"}))
	assert.Equal(t, "Ada Lovelace", PinnedValue(FullNameKey, v))
	assert.Equal(t, "ada@example.com", PinnedValue("email", v))
}
