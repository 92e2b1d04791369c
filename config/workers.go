package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

// AutoWorkers is the worker count value resolved from the host's CPUs.
const AutoWorkers = "auto"

const (
	fallbackWorkers = 2
	maxAutoWorkers  = 16
)

// cpuCounts is swapped in tests.
var cpuCounts = cpu.Counts

// ParseWorkers validates a worker count value without resolving "auto".
// It returns 0 for "auto".
func ParseWorkers(value string) (int, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, AutoWorkers) {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("workers must be a number or %q, got %q", AutoWorkers, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("workers must be positive, got %d", n)
	}
	return n, nil
}

// ResolveWorkers turns a worker count value into a pool size. "auto" uses
// half of the logical cores, clamped to [1, 16]; each worker drives its own
// browser process.
func ResolveWorkers(value string) int {
	n, err := ParseWorkers(value)
	if err != nil {
		return fallbackWorkers
	}
	if n > 0 {
		return n
	}

	cores, err := cpuCounts(true)
	if err != nil || cores <= 0 {
		return fallbackWorkers
	}
	return min(max(cores/2, 1), maxAutoWorkers)
}
