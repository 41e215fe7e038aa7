package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should return attached logger from context", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: DebugLevel, Output: &buf})
		ctx := ContextWithLogger(context.Background(), log)
		FromContext(ctx).Info("hello", "key", "value")
		assert.Contains(t, buf.String(), "hello")
		assert.Contains(t, buf.String(), "value")
	})
	t.Run("Should fall back to default logger without context value", func(t *testing.T) {
		require.NotNil(t, FromContext(context.Background()))
	})
	t.Run("Should honor level threshold", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: WarnLevel, Output: &buf})
		log.Debug("invisible")
		log.Warn("visible")
		assert.NotContains(t, buf.String(), "invisible")
		assert.Contains(t, buf.String(), "visible")
	})
	t.Run("Should emit JSON when configured", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})
		log.Info("structured", "a", 1)
		assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	})
}
