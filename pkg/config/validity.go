package config

import "strings"

// SectionReport captures the health of one configuration section after
// load. Invalid critical sections refuse startup; invalid non-critical
// sections put their component into a degraded fallback mode.
type SectionReport struct {
	Name     string `json:"name"`
	Valid    bool   `json:"valid"`
	Critical bool   `json:"critical"`
	Fallback string `json:"fallback,omitempty"`
}

// Inspect evaluates per-section validity for the resolved configuration.
func Inspect(cfg *Config) []SectionReport {
	reports := []SectionReport{inspectStorage(cfg), inspectAuth(cfg), inspectLLM(cfg), inspectVector(cfg)}
	return reports
}

// CriticalFailures returns the critical sections that are invalid.
func CriticalFailures(reports []SectionReport) []SectionReport {
	var failed []SectionReport
	for _, r := range reports {
		if r.Critical && !r.Valid {
			failed = append(failed, r)
		}
	}
	return failed
}

func inspectStorage(cfg *Config) SectionReport {
	r := SectionReport{Name: "storage", Critical: true, Valid: true}
	if strings.TrimSpace(cfg.Storage.LocalDir) == "" {
		r.Valid = false
		r.Fallback = "local storage directory is required"
	}
	return r
}

func inspectAuth(cfg *Config) SectionReport {
	r := SectionReport{Name: "auth", Valid: true}
	if cfg.Auth.Enabled && cfg.Auth.Mode == "production" {
		// Production token validation cannot run without the tenant keys.
		r.Critical = true
		if cfg.Auth.TenantID == "" || cfg.Auth.ClientID == "" {
			r.Valid = false
			r.Fallback = "production auth requires AZURE_TENANT_ID and ENTRA_CLIENT_ID"
		}
	}
	return r
}

func inspectLLM(cfg *Config) SectionReport {
	r := SectionReport{Name: "llm", Valid: true}
	if cfg.LLM.APIKey == "" {
		r.Valid = false
		r.Fallback = "no LLM credentials; responses served from canned fallbacks"
	}
	return r
}

func inspectVector(cfg *Config) SectionReport {
	r := SectionReport{Name: "vector", Valid: true}
	if cfg.Vector.Provider == "remote" && cfg.Vector.Endpoint == "" {
		r.Valid = false
		r.Fallback = "remote vector provider selected without endpoint; using in-process index"
	}
	return r
}
