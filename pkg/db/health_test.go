package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing_NilPool(t *testing.T) {
	err := Ping(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "pool is nil", err.Error())
}

func TestCheck_NilPool(t *testing.T) {
	h := Check(context.Background(), nil)
	assert.False(t, h.Healthy)
	assert.Equal(t, "pool is nil", h.Error)
}
