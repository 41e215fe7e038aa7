package config

// SensitiveString holds credentials that must never leak through logs,
// JSON encoding, or fmt verbs. Use Reveal() at the single point of use.
type SensitiveString string

const sensitiveMask = "[REDACTED]"

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return sensitiveMask
}

// GoString keeps %#v output masked as well.
func (s SensitiveString) GoString() string {
	return s.String()
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + sensitiveMask + `"`), nil
}

// Reveal returns the underlying secret value.
func (s SensitiveString) Reveal() string {
	return string(s)
}
