package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/engine/auth"
	"github.com/vimarsh-ai/vimarsh/engine/budget"
	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/security"
)

// adminAudit logs every admin request with the extracted resource ids.
// Malformed ids abort before the handler runs.
func (s *Server) adminAudit(c *gin.Context) {
	ids, err := pathIDs(c.Request.URL.Path)
	if err != nil {
		respondError(c, s.development, err)
		return
	}
	usr := auth.UserFromContext(c)
	actor := "anonymous"
	if usr != nil {
		actor = usr.Subject
	}
	details := map[string]any{
		"actor":  actor,
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}
	for param, id := range ids {
		details[param] = id
	}
	security.LogSecurityEvent(c.Request.Context(), "admin_action", details)
	c.Next()
}

func (s *Server) handleRole(c *gin.Context) {
	usr := auth.UserFromContext(c)
	if usr == nil {
		respondError(c, s.development,
			core.NewError(nil, core.CodeNoToken, "no authenticated user", nil))
		return
	}
	c.JSON(http.StatusOK, security.RedactForUser(map[string]any{
		"user_id":     usr.Subject,
		"email":       usr.Email,
		"name":        usr.Name,
		"role":        string(usr.Role),
		"permissions": usr.Permissions,
	}, []string{"user_id", "email", "name", "role", "permissions"}))
}

type budgetRequest struct {
	MonthlyUSD        float64 `json:"monthly_usd"`
	DailyUSD          float64 `json:"daily_usd"`
	RequestUSD        float64 `json:"request_usd"`
	Enabled           *bool   `json:"enabled"`
	EmergencyOverride bool    `json:"emergency_override"`
}

func (s *Server) handleSetBudget(c *gin.Context) {
	userID, err := sanitizeUserID(c.Param("user_id"))
	if err != nil {
		respondError(c, s.development, err)
		return
	}
	var body budgetRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, s.development, core.NewError(err, core.CodeInvalidFormat,
			"request body is not valid JSON", nil))
		return
	}
	if body.MonthlyUSD < 0 || body.DailyUSD < 0 || body.RequestUSD < 0 {
		respondError(c, s.development, core.NewError(nil, core.CodeInvalidFormat,
			"budget caps must be non-negative", nil))
		return
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	actor := auth.UserFromContext(c)
	s.deps.Enforcer.SetLimit(c.Request.Context(), actor.Subject, budget.Limit{
		UserID:            userID,
		MonthlyUSD:        body.MonthlyUSD,
		DailyUSD:          body.DailyUSD,
		RequestUSD:        body.RequestUSD,
		Enabled:           enabled,
		EmergencyOverride: body.EmergencyOverride,
	})
	c.JSON(http.StatusOK, s.deps.Enforcer.Limit(userID))
}

func (s *Server) handleUnblock(c *gin.Context) {
	userID, err := sanitizeUserID(c.Param("user_id"))
	if err != nil {
		respondError(c, s.development, err)
		return
	}
	actor := auth.UserFromContext(c)
	s.deps.Enforcer.Override(c.Request.Context(), actor.Subject, userID)
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": "unblocked"})
}

func sanitizeUserID(raw string) (string, error) {
	cleaned, err := security.SanitizeParams(
		map[string]string{"user_id": raw},
		map[string]security.FieldRule{
			"user_id": {Kind: security.FieldAlphanumeric, Required: true},
		},
	)
	if err != nil {
		return "", err
	}
	return cleaned["user_id"], nil
}
