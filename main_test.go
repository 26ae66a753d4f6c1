package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "default serve", args: nil},
		{name: "serve", args: []string{"serve"}},
		{name: "reindex", args: []string{"reindex"}},
		{name: "event", args: []string{"event"}},
		{name: "request with path", args: []string{"request", "/simple/"}},
		{name: "request with method", args: []string{"request", "/simple/", "head"}},
		{name: "request without path", args: []string{"request"}, wantErr: "request needs a path"},
		{name: "unknown command", args: []string{"bogus"}, wantErr: `unknown command "bogus"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCommand(tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
