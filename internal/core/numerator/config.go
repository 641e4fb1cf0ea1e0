// Package numerator provides domain contracts for document auto-numbering.
package numerator

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxValue is the largest number a series may hand out in one year.
const DefaultMaxValue int64 = 999_999

// Config holds numbering configuration for one entity type.
type Config struct {
	// Prefix is prepended to the year when set (e.g. "RV-" gives "RV-2025/00001")
	Prefix string

	// PadWidth is the minimum number width, used only with a prefix (default 5)
	PadWidth int

	// MinValue is the first number of a fresh year (default 1)
	MinValue int64

	// MaxValue is the last usable number (default 999999)
	MaxValue int64

	// IncrementBy is the step between numbers (default 1)
	IncrementBy int64
}

// DefaultConfig returns the plain "{year}/{n}" series.
func DefaultConfig() Config {
	return Config{
		PadWidth:    5,
		MinValue:    1,
		MaxValue:    DefaultMaxValue,
		IncrementBy: 1,
	}
}

// Normalize fills zero fields with defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.PadWidth <= 0 {
		c.PadWidth = d.PadWidth
	}
	if c.MinValue <= 0 {
		c.MinValue = d.MinValue
	}
	if c.MaxValue <= 0 {
		c.MaxValue = d.MaxValue
	}
	if c.IncrementBy <= 0 {
		c.IncrementBy = d.IncrementBy
	}
	return c
}

// Validate rejects inconsistent ranges.
func (c Config) Validate() error {
	if c.MinValue > c.MaxValue {
		return fmt.Errorf("min value %d exceeds max value %d", c.MinValue, c.MaxValue)
	}
	return nil
}

// Next computes the number following last. The boolean is false when the
// series is exhausted.
func (c Config) Next(last int64) (int64, bool) {
	next := last + c.IncrementBy
	if next < c.MinValue {
		next = c.MinValue
	}
	if next > c.MaxValue {
		return next, false
	}
	return next, true
}

// Format renders a number of the given year.
func (c Config) Format(year int, num int64) string {
	if c.Prefix == "" {
		return fmt.Sprintf("%d/%d", year, num)
	}
	return fmt.Sprintf("%s%d/%0*d", c.Prefix, year, c.PadWidth, num)
}

// ParseNumber extracts the numeric part from a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '/')
	if i < 0 || i == len(formatted)-1 {
		return -1
	}
	n, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
