// Package masking redacts sensitive free-text before it is persisted or
// emitted by the observability plane: evidence bundles, agent reasoning, and
// guardrail payloads may echo back secrets or PII that arrived in the
// incident's input.
package masking

import (
	"log/slog"
)

// Redactor applies a fixed group of masking patterns to free-text content.
// Built once at startup and safe for concurrent use — it holds no mutable
// state beyond the compiled patterns and maskers.
type Redactor struct {
	regexPatterns []*CompiledPattern
	codeMaskers   []Masker
}

// NewRedactor compiles the named pattern group (see config.GetBuiltinConfig
// .PatternGroups) into a ready-to-use Redactor. An unknown group yields a
// Redactor that passes content through unchanged.
func NewRedactor(group string) *Redactor {
	compiled := compileBuiltinPatterns()
	regexPatterns, codeMaskerNames := resolveGroup(group, compiled)

	available := map[string]Masker{
		"kubernetes_secret": &KubernetesSecretMasker{},
	}
	var codeMaskers []Masker
	for _, name := range codeMaskerNames {
		if m, ok := available[name]; ok {
			codeMaskers = append(codeMaskers, m)
		}
	}

	slog.Info("redactor initialized", "group", group, "regex_patterns", len(regexPatterns), "code_maskers", len(codeMaskers))

	return &Redactor{regexPatterns: regexPatterns, codeMaskers: codeMaskers}
}

// NewPIIRedactor is the default redactor used by the observability plane,
// covering the fields spec'd for incident evidence: email, phone, SSN,
// 12-digit account id, AWS access key, and IPv4 address.
func NewPIIRedactor() *Redactor {
	return NewRedactor("pii")
}

// Redact applies code-based maskers first (structural, more specific), then
// regex patterns (general sweep), and always returns — it never fails, since
// redaction runs on the hot path of trace emission.
func (r *Redactor) Redact(content string) string {
	if content == "" {
		return content
	}

	masked := content
	for _, m := range r.codeMaskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range r.regexPatterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
