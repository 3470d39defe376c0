package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["replay"])
}

func TestReplayCmdFlags(t *testing.T) {
	assert.NotNil(t, replayCmd.Flags().Lookup("provider"))
	assert.NotNil(t, replayCmd.Flags().Lookup("event"))
}

func TestReplayRequiresFlags(t *testing.T) {
	replayProvider, replayEventPath = "", ""
	err := replayCmd.RunE(replayCmd, nil)
	assert.EqualError(t, err, "provider is required")

	replayProvider = "kofi"
	err = replayCmd.RunE(replayCmd, nil)
	assert.EqualError(t, err, "event path is required")
	replayProvider = ""
}

func TestMigrateArgs(t *testing.T) {
	assert.EqualError(t, migrateCmd.RunE(migrateCmd, []string{"goto"}), "goto needs a version number")
	assert.EqualError(t, migrateCmd.RunE(migrateCmd, []string{"sideways"}), `unknown migrate command "sideways"`)
	assert.True(t, validMigrateCommand("status"))
}
