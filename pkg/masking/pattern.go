package masking

import (
	"log/slog"
	"regexp"

	"github.com/opsconsensus/orchestrator/pkg/config"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// compileBuiltinPatterns compiles every built-in regex pattern from config.
// Invalid patterns are logged and skipped rather than failing startup.
func compileBuiltinPatterns() map[string]*CompiledPattern {
	patterns := make(map[string]*CompiledPattern)
	for name, pattern := range config.GetBuiltinConfig().MaskingPatterns {
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping", "pattern", name, "error", err)
			continue
		}
		patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
	return patterns
}

// resolveGroup expands a pattern group name into its compiled regex patterns
// and code-masker names, deduplicated. An unknown group resolves to nothing.
func resolveGroup(groupName string, compiled map[string]*CompiledPattern) (regexPatterns []*CompiledPattern, codeMaskerNames []string) {
	builtin := config.GetBuiltinConfig()
	names, ok := builtin.PatternGroups[groupName]
	if !ok {
		return nil, nil
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		isCodeMasker := false
		for _, cm := range builtin.CodeMaskers {
			if cm == name {
				isCodeMasker = true
				break
			}
		}
		if isCodeMasker {
			codeMaskerNames = append(codeMaskerNames, name)
			continue
		}
		if cp, ok := compiled[name]; ok {
			regexPatterns = append(regexPatterns, cp)
		}
	}
	return regexPatterns, codeMaskerNames
}
