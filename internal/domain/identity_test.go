package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic dXNlcg==", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentity_Clone(t *testing.T) {
	id := &Identity{UserID: "u-1", Email: "a@example.com", Roles: []string{"member"}}
	c := id.Clone()
	c.Roles[0] = "admin"
	c.UserID = "u-2"

	assert.Equal(t, []string{"member"}, id.Roles)
	assert.Equal(t, "u-1", id.UserID)
	assert.Nil(t, (&Identity{}).Clone().Roles)
}
