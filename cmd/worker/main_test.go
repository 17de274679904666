package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroll/internal/config"
)

func TestCheckBackends(t *testing.T) {
	require.NoError(t, checkBackends(config.App{StoreBackend: "postgres", QueueBackend: "redis"}))

	err := checkBackends(config.App{StoreBackend: "postgres", QueueBackend: "memory"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_BACKEND")

	err = checkBackends(config.App{StoreBackend: "memory", QueueBackend: "redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
}
