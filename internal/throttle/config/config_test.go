package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestThresholdTable_DelayFor_ClosestBelow(t *testing.T) {
	table := MustThresholdTable(
		Threshold{Attempts: 10, Delay: time.Second},
		Threshold{Attempts: 20, Delay: 2 * time.Second},
		Threshold{Attempts: 30, Delay: 4 * time.Second},
	)

	tests := []struct {
		count     int
		wantDelay time.Duration
		wantOK    bool
	}{
		{count: 0, wantOK: false},
		{count: 9, wantOK: false},
		{count: 10, wantDelay: time.Second, wantOK: true},
		// between entries: the lower entry applies rather than no delay
		{count: 15, wantDelay: time.Second, wantOK: true},
		{count: 29, wantDelay: 2 * time.Second, wantOK: true},
		{count: 30, wantDelay: 4 * time.Second, wantOK: true},
		{count: 500, wantDelay: 4 * time.Second, wantOK: true},
	}
	for _, tt := range tests {
		delay, ok := table.DelayFor(tt.count)
		assert.Equal(t, tt.wantOK, ok, "count=%d", tt.count)
		assert.Equal(t, tt.wantDelay, delay, "count=%d", tt.count)
	}
}

func TestThresholdTable_Validate(t *testing.T) {
	t.Run("sorts unordered input", func(t *testing.T) {
		table, err := NewThresholdTable(
			Threshold{Attempts: 20, Delay: 2 * time.Second},
			Threshold{Attempts: 10, Delay: time.Second},
		)
		require.NoError(t, err)
		assert.Equal(t, 10, table[0].Attempts)
	})

	t.Run("rejects shrinking delay", func(t *testing.T) {
		_, err := NewThresholdTable(
			Threshold{Attempts: 10, Delay: 4 * time.Second},
			Threshold{Attempts: 20, Delay: 2 * time.Second},
		)
		assert.ErrorContains(t, err, "shorter")
	})

	t.Run("rejects negative delay", func(t *testing.T) {
		_, err := NewThresholdTable(Threshold{Attempts: 1, Delay: -time.Second})
		assert.ErrorContains(t, err, "negative")
	})

	t.Run("rejects duplicate attempts", func(t *testing.T) {
		_, err := NewThresholdTable(
			Threshold{Attempts: 5, Delay: time.Second},
			Threshold{Attempts: 5, Delay: 2 * time.Second},
		)
		assert.ErrorContains(t, err, "strictly increase")
	})

	t.Run("rejects zero attempts", func(t *testing.T) {
		_, err := NewThresholdTable(Threshold{Attempts: 0, Delay: time.Second})
		assert.Error(t, err)
	})
}

func TestParseThresholds(t *testing.T) {
	table, err := ParseThresholds("30:4s, 10:1s,20:2s")
	require.NoError(t, err)
	assert.Equal(t, "10:1s,20:2s,30:4s", table.String())

	empty, err := ParseThresholds("  ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseThresholds("10=1s")
	assert.Error(t, err)
	_, err = ParseThresholds("x:1s")
	assert.Error(t, err)
	_, err = ParseThresholds("10:soon")
	assert.Error(t, err)
}

func TestScopeConfig_Validate(t *testing.T) {
	assert.Error(t, ScopeConfig{}.Validate(), "zero interval")
	assert.Error(t, ScopeConfig{Interval: time.Minute, Limit: 3,
		Thresholds: MustThresholdTable(Threshold{Attempts: 1, Delay: time.Second})}.Validate())
	assert.NoError(t, ScopeConfig{Interval: time.Minute, Limit: 3}.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}

// DelayFor is monotonic: more attempts never yield a shorter delay.
func TestThresholdTable_DelayFor_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "entries")
		var entries []Threshold
		attempts, delay := 0, time.Duration(0)
		for range n {
			attempts += rapid.IntRange(1, 20).Draw(t, "step")
			delay += time.Duration(rapid.IntRange(0, 60).Draw(t, "grow")) * time.Second
			entries = append(entries, Threshold{Attempts: attempts, Delay: delay})
		}
		table := MustThresholdTable(entries...)

		a := rapid.IntRange(0, 200).Draw(t, "a")
		b := rapid.IntRange(a, 200).Draw(t, "b")
		da, _ := table.DelayFor(a)
		db, _ := table.DelayFor(b)
		if db < da {
			t.Fatalf("DelayFor(%d)=%s < DelayFor(%d)=%s", b, db, a, da)
		}
		if _, ok := table.DelayFor(table[0].Attempts - 1); ok {
			t.Fatalf("count below first entry must not apply a delay")
		}
	})
}
