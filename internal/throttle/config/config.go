// Package config holds per-scope throttle settings and the threshold table
// lookup. Tables are validated once at construction; a malformed table is a
// startup failure, never a request-time one.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Threshold maps an attempt count to a lockout delay.
type Threshold struct {
	Attempts int
	Delay    time.Duration
}

// ThresholdTable is ordered by strictly increasing Attempts.
type ThresholdTable []Threshold

// NewThresholdTable sorts the entries by attempt count and validates them.
func NewThresholdTable(entries ...Threshold) (ThresholdTable, error) {
	t := append(ThresholdTable(nil), entries...)
	sort.SliceStable(t, func(i, j int) bool { return t[i].Attempts < t[j].Attempts })
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustThresholdTable is NewThresholdTable for static tables.
func MustThresholdTable(entries ...Threshold) ThresholdTable {
	t, err := NewThresholdTable(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseThresholds reads the "attempts:delay" list form used in configuration
// files and environment variables, e.g. "10:1s,20:2s,30:4s".
func ParseThresholds(s string) (ThresholdTable, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var entries []Threshold
	for _, part := range strings.Split(s, ",") {
		attempts, delay, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("threshold %q: expected attempts:delay", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(attempts))
		if err != nil {
			return nil, fmt.Errorf("threshold %q: attempts: %w", part, err)
		}
		d, err := time.ParseDuration(strings.TrimSpace(delay))
		if err != nil {
			return nil, fmt.Errorf("threshold %q: delay: %w", part, err)
		}
		entries = append(entries, Threshold{Attempts: n, Delay: d})
	}
	return NewThresholdTable(entries...)
}

// Validate rejects non-positive or duplicate attempt counts, negative delays
// and delays that shrink as the attempt count grows.
func (t ThresholdTable) Validate() error {
	for i, th := range t {
		if th.Attempts <= 0 {
			return fmt.Errorf("threshold %d: attempts must be positive, got %d", i, th.Attempts)
		}
		if th.Delay < 0 {
			return fmt.Errorf("threshold %d: negative delay %s", i, th.Delay)
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if th.Attempts <= prev.Attempts {
			return fmt.Errorf("threshold %d: attempts must strictly increase (%d after %d)", i, th.Attempts, prev.Attempts)
		}
		if th.Delay < prev.Delay {
			return fmt.Errorf("threshold %d: delay %s is shorter than %s at %d attempts", i, th.Delay, prev.Delay, prev.Attempts)
		}
	}
	return nil
}

// DelayFor returns the delay of the entry with the greatest attempt count not
// exceeding count. ok is false when count is below every entry.
func (t ThresholdTable) DelayFor(count int) (delay time.Duration, ok bool) {
	i := sort.Search(len(t), func(i int) bool { return t[i].Attempts > count })
	if i == 0 {
		return 0, false
	}
	return t[i-1].Delay, true
}

func (t ThresholdTable) String() string {
	parts := make([]string, len(t))
	for i, th := range t {
		parts[i] = strconv.Itoa(th.Attempts) + ":" + th.Delay.String()
	}
	return strings.Join(parts, ",")
}

// ScopeConfig configures one throttle scope. Exactly one of Thresholds or
// Limit drives lockouts: with Limit set, exceeding Limit attempts inside the
// interval locks the scope until the oldest counted attempt leaves the window.
type ScopeConfig struct {
	Interval   time.Duration
	Thresholds ThresholdTable
	Limit      int
}

func (c ScopeConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	if c.Limit > 0 && len(c.Thresholds) > 0 {
		return errors.New("limit and thresholds are mutually exclusive")
	}
	return c.Thresholds.Validate()
}

// Config holds the three scope configurations.
type Config struct {
	Global ScopeConfig
	IP     ScopeConfig
	User   ScopeConfig
}

// Validate checks every scope.
func (c Config) Validate() error {
	for name, sc := range map[string]ScopeConfig{"global": c.Global, "ip": c.IP, "user": c.User} {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("throttle %s scope: %w", name, err)
		}
	}
	return nil
}

// DefaultConfig returns the stock throttle settings.
func DefaultConfig() Config {
	return Config{
		Global: ScopeConfig{
			Interval: 900 * time.Second,
			Thresholds: MustThresholdTable(
				Threshold{Attempts: 10, Delay: 1 * time.Second},
				Threshold{Attempts: 20, Delay: 2 * time.Second},
				Threshold{Attempts: 30, Delay: 4 * time.Second},
				Threshold{Attempts: 40, Delay: 8 * time.Second},
				Threshold{Attempts: 50, Delay: 16 * time.Second},
				Threshold{Attempts: 60, Delay: 32 * time.Second},
			),
		},
		IP: ScopeConfig{
			Interval: 900 * time.Second,
			Limit:    5,
		},
		User: ScopeConfig{
			Interval: 900 * time.Second,
			Limit:    5,
		},
	}
}
