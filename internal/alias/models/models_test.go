package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "paymail-bridge/pkg/domain-errors"
)

func TestValidAlias(t *testing.T) {
	tests := []struct {
		alias string
		want  bool
	}{
		{"alice", true},
		{"Alice_01", true},
		{"a-b", true},
		{"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", true},
		{"", false},
		{"alice@example.com", false},
		{"al ice", false},
		{"alice.b", false},
		{"ålice", false},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidAlias(tt.alias))
		})
	}
}

func TestHandle(t *testing.T) {
	assert.Equal(t, "alice@bridge.example", Handle("alice", "bridge.example"))
}

func TestParseHandle(t *testing.T) {
	tests := []struct {
		name    string
		handle  string
		want    string
		wantErr string
	}{
		{name: "own domain", handle: "alice@bridge.example", want: "alice"},
		{name: "percent encoded", handle: "alice%40bridge.example", want: "alice"},
		{name: "domain is case insensitive", handle: "alice@Bridge.Example", want: "alice"},
		{name: "foreign domain", handle: "alice@other.example", wantErr: "Invalid domain"},
		{name: "no domain", handle: "alice", wantErr: "Invalid paymail"},
		{name: "empty alias", handle: "@bridge.example", wantErr: "Invalid paymail"},
		{name: "dot in alias", handle: "a.b@bridge.example", wantErr: "Invalid alias format"},
		{name: "path traversal", handle: "../x@bridge.example", wantErr: "Invalid alias format"},
		{name: "encoded space", handle: "al%20ice@bridge.example", wantErr: "Invalid alias format"},
		{name: "underscore and dash", handle: "al_ice-1@bridge.example", want: "al_ice-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alias, err := ParseHandle(tt.handle, "bridge.example")
			if tt.wantErr != "" {
				de, ok := dErrors.As(err)
				if assert.True(t, ok) {
					assert.Equal(t, dErrors.CodeValidation, de.Code)
					assert.Equal(t, tt.wantErr, de.Message)
				}
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, alias)
		})
	}
}
