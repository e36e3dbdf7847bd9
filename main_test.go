package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	require.NotNil(t, rootCmd)
	assert.Equal(t, "scribe", rootCmd.Use)
	assert.Contains(t, rootCmd.Long, "scribe serve")
}

func TestVersionCommand(t *testing.T) {
	require.NotNil(t, versionCmd)
	assert.Equal(t, "version", versionCmd.Use)
	assert.Equal(t, "Print version information", versionCmd.Short)
}
