package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/engine/auth"
	"github.com/vimarsh-ai/vimarsh/engine/auth/user"
	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/guidance"
)

type guidanceRequest struct {
	Query         string `json:"query"`
	PersonalityID string `json:"personality_id"`
	SessionID     string `json:"session_id"`
	Language      string `json:"language"`
}

type guidanceMetadata struct {
	CharacterCount int    `json:"character_count"`
	MaxAllowed     int    `json:"max_allowed"`
	Quality        string `json:"quality"`
	Attempt        int    `json:"attempt"`
	Model          string `json:"model,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	DeniedReason   string `json:"denied_reason,omitempty"`
}

type guidanceResponse struct {
	Content       string           `json:"content"`
	Citations     []string         `json:"citations"`
	PersonalityID string           `json:"personality_id"`
	Metadata      guidanceMetadata `json:"metadata"`
}

func (s *Server) handleGuidance(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	var body guidanceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, s.development, core.NewError(err, core.CodeInvalidFormat,
			"request body is not valid JSON", nil))
		return
	}
	if body.Language != "" && !slices.Contains(s.deps.Config.App.Languages(), body.Language) {
		respondError(c, s.development, core.NewError(nil, core.CodeInvalidFormat,
			"unsupported language", map[string]any{"language": body.Language}))
		return
	}

	usr := auth.UserFromContext(c)
	if usr == nil {
		// Development mode with auth disabled serves a shared identity.
		usr = &user.User{Subject: "dev-user-001", Email: "user@vimarsh.local", Role: user.RoleUser}
	}

	out, err := s.deps.Pipeline.Ask(ctx, usr, &guidance.Request{
		Question:    body.Query,
		Personality: body.PersonalityID,
		SessionID:   body.SessionID,
	})
	if err != nil {
		respondError(c, s.development, err)
		return
	}

	persona := s.deps.Registry.Get(ctx, out.Personality)
	wire := guidanceResponse{
		Content:       out.Text,
		Citations:     out.Citations,
		PersonalityID: out.Personality,
		Metadata: guidanceMetadata{
			CharacterCount: len([]rune(out.Text)),
			MaxAllowed:     persona.MaxChars,
			Quality:        out.Quality,
			Attempt:        out.Attempts,
			Model:          out.Model,
			ResponseTimeMS: out.ResponseTimeMS,
		},
	}
	if wire.Citations == nil {
		wire.Citations = []string{}
	}

	if out.Denied {
		wire.Metadata.DeniedReason = out.DeniedReason
		s.deps.Metrics.ObserveDenied(ctx, out.Personality, out.DeniedReason)
		c.JSON(http.StatusForbidden, guidanceView(wire))
		return
	}
	s.deps.Metrics.ObserveServed(ctx, out.Personality, out.Quality,
		out.InputTokens, out.OutputTokens, out.CostUSD, time.Since(start))
	c.JSON(http.StatusOK, guidanceView(wire))
}

func guidanceView(wire guidanceResponse) map[string]any {
	return userView(wire, "content", "citations", "personality_id", "metadata")
}
