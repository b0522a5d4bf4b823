package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "admin:create", "policy:show", "idempotency:purge"} {
		assert.True(t, names[want], want)
	}
}

func TestAdminCreateRequiresFlags(t *testing.T) {
	for _, flag := range []string{"username", "email", "password"} {
		f := adminCreateCmd.Flags().Lookup(flag)
		if assert.NotNil(t, f, flag) {
			assert.Equal(t, []string{"true"}, f.Annotations[cobra.BashCompOneRequiredFlag], flag)
		}
	}
}
