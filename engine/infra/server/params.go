package server

import (
	"strings"

	"github.com/vimarsh-ai/vimarsh/engine/security"
)

// Resource path segments whose following segment is an identifier.
var resourceParams = map[string]string{
	"users":   "user_id",
	"budgets": "budget_id",
	"roles":   "role_id",
}

// pathIDs extracts resource identifiers from URL segments shaped like
// /users/{id}, /budgets/{id}, /roles/{id} anywhere in the path. Every
// extracted value passes the alphanumeric sanitizer; a malformed id
// fails the whole extraction.
func pathIDs(path string) (map[string]string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	raw := make(map[string]string)
	rules := make(map[string]security.FieldRule)
	for i := 0; i+1 < len(segments); i++ {
		param, ok := resourceParams[segments[i]]
		if !ok {
			continue
		}
		raw[param] = segments[i+1]
		rules[param] = security.FieldRule{Kind: security.FieldAlphanumeric}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return security.SanitizeParams(raw, rules)
}
