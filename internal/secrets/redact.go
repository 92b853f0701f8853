package secrets

import (
	"regexp"

	"deployctl/internal/model"
)

// EncryptEnvVars encrypts the Value of every EnvVar marked Secret, in place.
// Non-secret vars and already-encrypted values pass through unchanged.
func EncryptEnvVars(vars []model.EnvVar) error {
	if !Enabled() {
		return nil
	}
	for i, v := range vars {
		if !v.Secret || v.Value == "" || IsEncrypted(v.Value) {
			continue
		}
		enc, err := DefaultEncryptor.Encrypt(v.Value)
		if err != nil {
			return err
		}
		vars[i].Value = enc
	}
	return nil
}

// DecryptEnvVars reverses EncryptEnvVars for callers that need plaintext,
// returning a decrypted copy and leaving vars unchanged.
func DecryptEnvVars(vars []model.EnvVar) ([]model.EnvVar, error) {
	out := make([]model.EnvVar, len(vars))
	copy(out, vars)
	if !Enabled() {
		return out, nil
	}
	for i, v := range out {
		if !v.Secret || !IsEncrypted(v.Value) {
			continue
		}
		plain, err := DefaultEncryptor.Decrypt(v.Value)
		if err != nil {
			return nil, err
		}
		out[i].Value = plain
	}
	return out, nil
}

// Redactor replaces matches of a configurable regex set with a fixed mask
// before a string reaches a persisted row or a published event (§4.3).
type Redactor struct {
	patterns []*regexp.Regexp
}

// defaultRedactionPatterns catch common credential shapes that might leak
// into free-text diagnostic fields (scanner reasoning, build log lines)
// independent of the structured EnvVar.Secret flag.
var defaultRedactionPatterns = []string{
	`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*\S+`,
	`(?i)AKIA[0-9A-Z]{16}`,
	`-----BEGIN (?:RSA|EC|OPENSSH) PRIVATE KEY-----[\s\S]+?-----END (?:RSA|EC|OPENSSH) PRIVATE KEY-----`,
}

// NewRedactor compiles the given regex patterns. A nil/empty slice falls
// back to defaultRedactionPatterns.
func NewRedactor(patterns []string) (*Redactor, error) {
	if len(patterns) == 0 {
		patterns = defaultRedactionPatterns
	}
	r := &Redactor{}
	for _, p := range patterns {
		compiled, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		r.patterns = append(r.patterns, compiled)
	}
	return r, nil
}

// Redact masks every pattern match in s with "[REDACTED]".
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// RedactEnvVarValues replaces the Value of every secret-flagged EnvVar with a
// fixed mask, for callers that must log or echo a job without ever handling
// the plaintext (independent of whether encryption is enabled).
func RedactEnvVarValues(vars []model.EnvVar) []model.EnvVar {
	out := make([]model.EnvVar, len(vars))
	for i, v := range vars {
		out[i] = v
		if v.Secret {
			out[i].Value = "[REDACTED]"
		}
	}
	return out
}
