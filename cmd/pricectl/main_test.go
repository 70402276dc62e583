package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"normalize", "1.250,50 TL"}, "1250.50 TRY"},
		{[]string{"normalize", "$1,299"}, "1299.00 USD"},
		{[]string{"normalize", "--currency", "EUR", "89,90"}, "89.90 EUR"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRootCommand()
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)
			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.want, strings.TrimSpace(out.String()))
		})
	}
}

func TestNormalizeCommandRejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"normalize", "call for price"})
	assert.Error(t, cmd.Execute())
}
