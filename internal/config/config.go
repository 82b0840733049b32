// Package config parses the collector's key=value, comma-separated
// configuration and debug-flag environment variables (spec §6).
package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MajorBackend selects the old-generation implementation (spec §6
// major=...).
type MajorBackend string

const (
	MajorMarkSweep        MajorBackend = "marksweep"
	MajorMarkSweepPar     MajorBackend = "marksweep-par"
	MajorMarkSweepFixed   MajorBackend = "marksweep-fixed"
	MajorMarkSweepFixedPar MajorBackend = "marksweep-fixed-par"
	MajorCopying          MajorBackend = "copying"
)

// WBarrierKind selects the write-barrier backend (spec §6 wbarrier=...).
type WBarrierKind string

const (
	WBarrierRemset    WBarrierKind = "remset"
	WBarrierCardTable WBarrierKind = "cardtable"
)

// StackMark selects stack-scanning precision (spec §6 stack-mark=...).
type StackMark string

const (
	StackPrecise      StackMark = "precise"
	StackConservative StackMark = "conservative"
)

// Config holds the parsed collector configuration.
type Config struct {
	Major         MajorBackend
	WBarrier      WBarrierKind
	MaxHeapSize   uint64
	SoftHeapLimit uint64
	NurserySize   uint64
	StackMark     StackMark
	Workers       int
}

// Default returns the configuration used when no environment variable is
// set.
func Default() Config {
	return Config{
		Major:         MajorMarkSweep,
		WBarrier:      WBarrierRemset,
		MaxHeapSize:   1 << 30, // 1 GiB
		SoftHeapLimit: 512 << 20,
		NurserySize:   4 << 20, // 4 MiB, matching spec §8 scenario sizing
		StackMark:     StackConservative,
		Workers:       4,
	}
}

// Parse parses a key=value,key=value,... string (spec §6's configuration
// grammar). Unknown keys are rejected: a parse failure here is meant to
// "print usage, terminate the process during initialization" (spec §7),
// which the caller (package sgengo) does by surfacing the wrapped error.
func Parse(s string) (Config, error) {
	cfg := Default()
	if s == "" {
		return cfg, nil
	}
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return cfg, errors.Errorf("config: malformed entry %q, want key=value", kv)
		}
		if err := apply(&cfg, k, v); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func apply(cfg *Config, key, val string) error {
	switch key {
	case "major":
		cfg.Major = MajorBackend(val)
	case "wbarrier":
		cfg.WBarrier = WBarrierKind(val)
	case "max-heap-size":
		n, err := parseSize(val)
		if err != nil {
			return errors.Wrap(err, "config: max-heap-size")
		}
		cfg.MaxHeapSize = n
	case "soft-heap-limit":
		n, err := parseSize(val)
		if err != nil {
			return errors.Wrap(err, "config: soft-heap-limit")
		}
		cfg.SoftHeapLimit = n
	case "nursery-size":
		n, err := parseSize(val)
		if err != nil {
			return errors.Wrap(err, "config: nursery-size")
		}
		if n&(n-1) != 0 {
			return errors.Errorf("config: nursery-size %d is not a power of two", n)
		}
		cfg.NurserySize = n
	case "stack-mark":
		cfg.StackMark = StackMark(val)
	case "workers":
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.Wrap(err, "config: workers")
		}
		cfg.Workers = n
	default:
		return errors.Errorf("config: unknown key %q", key)
	}
	return nil
}

// parseSize parses an N[k|m|g] size suffix shared by max-heap-size,
// soft-heap-limit, and nursery-size.
func parseSize(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty size")
	}
	mult := uint64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// DebugFlags is the parsed form of the second, debug-oriented environment
// variable (spec §6 "Debug flags"), a comma-separated set of bare flags
// or flag=value pairs.
type DebugFlags struct {
	set    map[string]bool
	values map[string]string
}

func ParseDebugFlags(s string) DebugFlags {
	d := DebugFlags{set: make(map[string]bool), values: make(map[string]string)}
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if k, v, ok := strings.Cut(f, "="); ok {
			d.set[k] = true
			d.values[k] = v
		} else {
			d.set[f] = true
		}
	}
	return d
}

func (d DebugFlags) Has(name string) bool { return d.set[name] }
func (d DebugFlags) Value(name string) (string, bool) {
	v, ok := d.values[name]
	return v, ok
}
