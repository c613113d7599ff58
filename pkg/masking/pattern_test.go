package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsconsensus/orchestrator/pkg/config"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	compiled := compileBuiltinPatterns()

	builtin := config.GetBuiltinConfig()
	assert.Equal(t, len(builtin.MaskingPatterns), len(compiled), "all built-in patterns should compile")

	for name, cp := range compiled {
		assert.NotNil(t, cp.Regex, "pattern %s should have a compiled regex", name)
		assert.NotEmpty(t, cp.Replacement, "pattern %s should have a replacement", name)
	}
}

func TestResolveGroup_Expansion(t *testing.T) {
	compiled := compileBuiltinPatterns()

	tests := []struct {
		name           string
		group          string
		minRegex       int
		hasCodeMaskers bool
	}{
		{name: "basic group", group: "basic", minRegex: 2},
		{name: "secrets group", group: "secrets", minRegex: 5},
		{name: "security group", group: "security", minRegex: 7},
		{name: "kubernetes group", group: "kubernetes", minRegex: 3, hasCodeMaskers: true},
		{name: "cloud group", group: "cloud", minRegex: 4},
		{name: "pii group", group: "pii", minRegex: 6},
		{name: "all group", group: "all", minRegex: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regexPatterns, codeMaskerNames := resolveGroup(tt.group, compiled)

			assert.GreaterOrEqual(t, len(regexPatterns), tt.minRegex, "should have at least %d regex patterns", tt.minRegex)

			if tt.hasCodeMaskers {
				assert.Contains(t, codeMaskerNames, "kubernetes_secret")
			} else {
				assert.Empty(t, codeMaskerNames)
			}
		})
	}
}

func TestResolveGroup_UnknownGroup(t *testing.T) {
	compiled := compileBuiltinPatterns()
	regexPatterns, codeMaskerNames := resolveGroup("nonexistent_group", compiled)

	assert.Empty(t, regexPatterns)
	assert.Empty(t, codeMaskerNames)
}

func TestResolveGroup_Deduplication(t *testing.T) {
	// "all" lists every pattern exactly once in builtin.go; verify resolveGroup
	// itself doesn't duplicate entries even if a group listed one twice.
	compiled := compileBuiltinPatterns()
	regexPatterns, _ := resolveGroup("secrets", compiled)

	seen := map[string]int{}
	for _, p := range regexPatterns {
		seen[p.Name]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "pattern %s should appear once", name)
	}
}

func TestBuiltinPatternRegression(t *testing.T) {
	compiled := compileBuiltinPatterns()

	tests := []struct {
		name        string
		pattern     string
		input       string
		shouldMask  bool
		maskContain string
	}{
		{
			name:        "api_key masks standard format",
			pattern:     "api_key",
			input:       `api_key: "FAKE-API-KEY-NOT-REAL-XXXXXXXXXXXX"`,
			shouldMask:  true,
			maskContain: "[MASKED_API_KEY]",
		},
		{
			name:        "password masks standard format",
			pattern:     "password",
			input:       `password: "FAKE-PASSWORD-NOT-REAL"`,
			shouldMask:  true,
			maskContain: "[MASKED_PASSWORD]",
		},
		{
			name:       "password does not mask short value",
			pattern:    "password",
			input:      `password: "short"`,
			shouldMask: false,
		},
		{
			name: "certificate masks PEM block",
			pattern: "certificate",
			input: `-----BEGIN CERTIFICATE-----
FAKE-CERT-DATA-NOT-REAL
-----END CERTIFICATE-----`,
			shouldMask:  true,
			maskContain: "[MASKED_CERTIFICATE]",
		},
		{
			name:        "certificate_authority_data masks k8s CA",
			pattern:     "certificate_authority_data",
			input:       `certificate-authority-data: FAKECERTDATANOTREALDATAXXXXXXXXXX`,
			shouldMask:  true,
			maskContain: "[MASKED_CA_CERTIFICATE]",
		},
		{
			name:        "email masks standard email",
			pattern:     "email",
			input:       `contact: user@example.com`,
			shouldMask:  true,
			maskContain: "[MASKED_EMAIL]",
		},
		{
			name:        "phone_number masks US format",
			pattern:     "phone_number",
			input:       `call 555-123-4567`,
			shouldMask:  true,
			maskContain: "[MASKED_PHONE]",
		},
		{
			name:        "ssn masks standard format",
			pattern:     "ssn",
			input:       `ssn: 123-45-6789`,
			shouldMask:  true,
			maskContain: "[MASKED_SSN]",
		},
		{
			name:        "account_id masks 12-digit id",
			pattern:     "account_id",
			input:       `account: 123456789012`,
			shouldMask:  true,
			maskContain: "[MASKED_ACCOUNT_ID]",
		},
		{
			name:        "aws_access_key masks AKIA format",
			pattern:     "aws_access_key",
			input:       `aws_access_key_id: "AKIAFAKENOTREALSECRET"`,
			shouldMask:  true,
			maskContain: "[MASKED_AWS_KEY]",
		},
		{
			name:        "ipv4_address masks dotted quad",
			pattern:     "ipv4_address",
			input:       `source: 10.0.0.42`,
			shouldMask:  true,
			maskContain: "[MASKED_IPV4]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp, exists := compiled[tt.pattern]
			require.True(t, exists, "pattern %s should exist", tt.pattern)

			result := cp.Regex.ReplaceAllString(tt.input, cp.Replacement)
			if tt.shouldMask {
				assert.NotEqual(t, tt.input, result, "should have masked the input")
				assert.Contains(t, result, tt.maskContain)
			} else {
				assert.Equal(t, tt.input, result, "should not have masked the input")
			}
		})
	}
}
