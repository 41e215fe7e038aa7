package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/pkg/config"
)

// handleHealth reports per-section configuration validity and which
// store mode the process is running in. Degraded sections do not fail
// the probe; a critical failure would have refused startup.
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	for _, report := range s.deps.Reports {
		if !report.Valid {
			status = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"environment": s.deps.Config.Runtime.Environment,
		"store_mode":  s.deps.StoreMode,
		"sections":    sectionMap(s.deps.Reports),
	})
}

func sectionMap(reports []config.SectionReport) map[string]any {
	out := make(map[string]any, len(reports))
	for _, r := range reports {
		entry := map[string]any{"valid": r.Valid}
		if r.Fallback != "" {
			entry["fallback"] = r.Fallback
		}
		out[r.Name] = entry
	}
	return out
}
