package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID identifies engine entities (users, chunks, records).
type ID string

func (i ID) String() string {
	return string(i)
}

// NewID returns a random v4 UUID identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// Domain tags a personality with its subject area and selects the base
// prompt template and the vector partition naming scheme.
type Domain string

const (
	DomainSpiritual     Domain = "spiritual"
	DomainScientific    Domain = "scientific"
	DomainHistorical    Domain = "historical"
	DomainPhilosophical Domain = "philosophical"
)

func (d Domain) String() string {
	return string(d)
}

// IsValid reports whether the domain is one of the four supported tags.
func (d Domain) IsValid() bool {
	switch d {
	case DomainSpiritual, DomainScientific, DomainHistorical, DomainPhilosophical:
		return true
	}
	return false
}

// Quality is the coarse label describing how a response was produced.
type Quality string

const (
	QualityHigh     Quality = "high"
	QualityMedium   Quality = "medium"
	QualityLow      Quality = "low"
	QualityFallback Quality = "fallback"
)

func (q Quality) String() string {
	return string(q)
}

// MonthKey returns the UTC calendar-month bucket for t, e.g. "2026-08".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DayKey returns the UTC calendar-day bucket for t, e.g. "2026-08-24".
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NormalizeEmail lowercases and trims an email for map keys and role lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CloneMap shallow-copies a metadata map so callers cannot mutate shared state.
func CloneMap[K comparable, V any](src map[K]V) map[K]V {
	if src == nil {
		return nil
	}
	out := make(map[K]V, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
