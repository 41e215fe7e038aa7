package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("Should expose code through wrapped chains", func(t *testing.T) {
		base := NewError(errors.New("boom"), CodeStorageUnavailable, "write failed", nil)
		wrapped := fmt.Errorf("persisting usage: %w", base)
		assert.Equal(t, CodeStorageUnavailable, CodeOf(wrapped))
		assert.True(t, IsCode(wrapped, CodeStorageUnavailable))
	})
	t.Run("Should return empty code for untyped errors", func(t *testing.T) {
		assert.Empty(t, CodeOf(errors.New("plain")))
	})
	t.Run("Should include cause in message", func(t *testing.T) {
		err := NewError(errors.New("dial tcp"), CodeProviderTransport, "llm call failed", nil)
		assert.Contains(t, err.Error(), "dial tcp")
		assert.Contains(t, err.Error(), CodeProviderTransport)
	})
}

func TestMonthAndDayKeys(t *testing.T) {
	t.Run("Should bucket by UTC calendar month", func(t *testing.T) {
		ts := time.Date(2026, 8, 24, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
		assert.Equal(t, "2026-08", MonthKey(ts))
		assert.Equal(t, "2026-08-24", DayKey(ts))
	})
	t.Run("Should roll the month at the UTC boundary", func(t *testing.T) {
		ts := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "2026-09", MonthKey(ts))
	})
}

func TestNormalizeEmail(t *testing.T) {
	t.Run("Should lowercase and trim", func(t *testing.T) {
		assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
	})
}

func TestCloneMap(t *testing.T) {
	t.Run("Should copy entries without sharing storage", func(t *testing.T) {
		src := map[string]string{"a": "1"}
		dst := CloneMap(src)
		dst["a"] = "2"
		assert.Equal(t, "1", src["a"])
	})
	t.Run("Should preserve nil", func(t *testing.T) {
		require.Nil(t, CloneMap[string, string](nil))
	})
}

func TestDomain(t *testing.T) {
	t.Run("Should validate supported domains only", func(t *testing.T) {
		assert.True(t, DomainSpiritual.IsValid())
		assert.False(t, Domain("mythical").IsValid())
	})
}
