package validation

import (
	"fmt"
	"os"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/tesseramedia/clipguard/internal/policy"
)

// ValidationMode controls strictness for tooling validation commands.
type ValidationMode string

const (
	ValidationModeStrict  ValidationMode = "strict"
	ValidationModeRelaxed ValidationMode = "relaxed"
)

// ParseValidationMode normalizes command mode input.
func ParseValidationMode(raw string) (ValidationMode, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ValidationModeStrict, nil
	}
	switch ValidationMode(trimmed) {
	case ValidationModeStrict, ValidationModeRelaxed:
		return ValidationMode(trimmed), nil
	default:
		return "", fmt.Errorf("unsupported validation mode %q (expected strict|relaxed)", raw)
	}
}

type ruleFileDocument struct {
	Regions   map[string]map[string]string `yaml:"regions"`
	Ratings   map[string]map[string]string `yaml:"ratings"`
	Platforms map[string]map[string]string `yaml:"platforms"`
}

// ValidateRuleFile lints a policy override document before it is deployed.
// Strict mode rejects unknown YAML keys and categories outside the published
// taxonomy; relaxed mode tolerates both so documents written against a newer
// taxonomy still lint on older tooling. Unknown actions fail in either mode.
func ValidateRuleFile(path string, mode string) error {
	normalizedPath := strings.TrimSpace(path)
	if normalizedPath == "" {
		return fmt.Errorf("rule_path is required")
	}
	raw, err := os.ReadFile(normalizedPath)
	if err != nil {
		return fmt.Errorf("read rule file %s: %w", normalizedPath, err)
	}
	return ValidateRuleBytes(raw, mode)
}

// ValidateRuleBytes validates an override document already in memory.
func ValidateRuleBytes(raw []byte, mode string) error {
	parsedMode, err := ParseValidationMode(mode)
	if err != nil {
		return err
	}

	var doc ruleFileDocument
	if parsedMode == ValidationModeStrict {
		if err := yaml.UnmarshalStrict(raw, &doc); err != nil {
			return fmt.Errorf("parse rule document: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse rule document: %w", err)
		}
	}

	if len(doc.Regions) == 0 && len(doc.Ratings) == 0 && len(doc.Platforms) == 0 {
		return fmt.Errorf("rule document declares no overrides")
	}

	known := map[policy.Category]bool{}
	for _, category := range policy.Categories() {
		known[category] = true
	}

	var problems []string
	for dimension, section := range map[string]map[string]map[string]string{
		"regions":   doc.Regions,
		"ratings":   doc.Ratings,
		"platforms": doc.Platforms,
	} {
		for selector, rules := range section {
			if strings.TrimSpace(selector) == "" {
				problems = append(problems, fmt.Sprintf("%s: empty selector key", dimension))
				continue
			}
			if len(rules) == 0 {
				problems = append(problems, fmt.Sprintf("%s(%s): selector declares no rules", dimension, selector))
			}
			for category, action := range rules {
				if parsedMode == ValidationModeStrict && !known[policy.Category(category)] {
					problems = append(problems, fmt.Sprintf("%s(%s): unknown category %q", dimension, selector, category))
				}
				if err := policy.Action(action).Validate(); err != nil {
					problems = append(problems, fmt.Sprintf("%s(%s): %v", dimension, selector, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("rule document invalid:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}
