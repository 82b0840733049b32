package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse("major=marksweep,wbarrier=cardtable,max-heap-size=2g,soft-heap-limit=512m,nursery-size=8m,stack-mark=precise,workers=2")
	require.NoError(t, err)
	assert.Equal(t, MajorMarkSweep, cfg.Major)
	assert.Equal(t, WBarrierCardTable, cfg.WBarrier)
	assert.Equal(t, uint64(2)<<30, cfg.MaxHeapSize)
	assert.Equal(t, uint64(512)<<20, cfg.SoftHeapLimit)
	assert.Equal(t, uint64(8)<<20, cfg.NurserySize)
	assert.Equal(t, StackPrecise, cfg.StackMark)
	assert.Equal(t, 2, cfg.Workers)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse("bogus=1")
	assert.Error(t, err)
}

func TestParseRejectsMalformedEntry(t *testing.T) {
	_, err := Parse("major")
	assert.Error(t, err)
}

func TestParseRejectsNonPowerOfTwoNursery(t *testing.T) {
	_, err := Parse("nursery-size=3m")
	assert.Error(t, err)
}
