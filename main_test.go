package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWarnDegradedConfig(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(func() {
		zap.ReplaceGlobals(prev)
		viper.Reset()
	})

	viper.Set("crust.endpoint", "")
	warnDegradedConfig()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "crust.endpoint")

	viper.Set("crust.endpoint", "https://crust-gw.example.com")
	warnDegradedConfig()
	assert.Len(t, logs.All(), 1)
}
