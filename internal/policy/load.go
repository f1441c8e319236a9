package policy

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// ruleSetFile is the on-disk shape of an override document. Keys follow the
// wire spelling of categories and actions.
type ruleSetFile struct {
	Regions   map[string]map[string]string `yaml:"regions"`
	Ratings   map[string]map[string]string `yaml:"ratings"`
	Platforms map[string]map[string]string `yaml:"platforms"`
}

// LoadRuleSet reads override tables from a YAML document, validating every
// category and action. Missing dimensions fall back to the builtin tables so
// a partial document can tighten one region without restating the rest.
func LoadRuleSet(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, errors.Wrap(err, "read policy rule set")
	}
	var file ruleSetFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return RuleSet{}, errors.Wrap(err, "parse policy rule set")
	}

	builtin := BuiltinRules()
	rules := RuleSet{
		ByRegion:   overridesFromFile(file.Regions, builtin.ByRegion),
		ByRating:   overridesFromFile(file.Ratings, builtin.ByRating),
		ByPlatform: overridesFromFile(file.Platforms, builtin.ByPlatform),
	}
	if err := rules.Validate(); err != nil {
		return RuleSet{}, errors.Wrap(err, "validate policy rule set")
	}
	return rules, nil
}

func overridesFromFile(section map[string]map[string]string, fallback Overrides) Overrides {
	if len(section) == 0 {
		return fallback
	}
	out := make(Overrides, len(section))
	for selector, rules := range section {
		mapped := make(map[Category]Action, len(rules))
		for category, action := range rules {
			mapped[Category(category)] = Action(action)
		}
		out[selector] = mapped
	}
	return out
}
