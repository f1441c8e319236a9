package policy

import (
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Selector identifies one compliance context. Unknown values are legal and
// simply contribute no override.
type Selector struct {
	Platform string
	Rating   string
	Region   string
}

// Profile is the resolved category-to-action mapping for one selector triple.
// It has no persistence of its own; it is always a pure projection of the
// selectors that produced it.
type Profile struct {
	Name  string
	Rules map[Category]Action
}

// Rule returns the effective action for a category, ALLOWED when untouched.
func (p Profile) Rule(category Category) Action {
	if action, ok := p.Rules[category]; ok {
		return action
	}
	return ActionAllowed
}

// Overrides maps a selector value to its category escalations.
type Overrides map[string]map[Category]Action

// RuleSet holds the three independent override dimensions.
type RuleSet struct {
	ByRegion   Overrides
	ByRating   Overrides
	ByPlatform Overrides
}

// Validate rejects rule sets that reference unknown categories or actions.
func (rs RuleSet) Validate() error {
	for name, dimension := range map[string]Overrides{
		"region":   rs.ByRegion,
		"rating":   rs.ByRating,
		"platform": rs.ByPlatform,
	} {
		for selector, rules := range dimension {
			for category, action := range rules {
				if err := category.Validate(); err != nil {
					return fmt.Errorf("%s override %q: %w", name, selector, err)
				}
				if err := action.Validate(); err != nil {
					return fmt.Errorf("%s override %q category %s: %w", name, selector, category, err)
				}
			}
		}
	}
	return nil
}

// Resolver produces deterministic enforcement profiles from a rule set.
// Resolved profiles are cached by their reproducible name.
type Resolver struct {
	rules RuleSet
	cache *gocache.Cache
}

// NewResolver returns a resolver over the builtin rule set.
func NewResolver() *Resolver {
	return NewResolverWithRules(BuiltinRules())
}

// NewResolverWithRules returns a resolver over an explicit rule set.
func NewResolverWithRules(rules RuleSet) *Resolver {
	return &Resolver{
		rules: rules,
		cache: gocache.New(time.Hour, 10*time.Minute),
	}
}

// Resolve merges the three override dimensions into one profile. The merge is
// escalate-only: a category's rule is replaced only by a stricter proposal, so
// evaluation order cannot lower an already-raised rule.
func (r *Resolver) Resolve(sel Selector) Profile {
	name := ProfileName(sel)
	if cached, ok := r.cache.Get(name); ok {
		if profile, ok := cached.(Profile); ok {
			return profile.clone()
		}
	}

	rules := make(map[Category]Action, len(Categories()))
	for _, category := range Categories() {
		rules[category] = ActionAllowed
	}
	applyOverrides(rules, r.rules.ByRegion, sel.Region)
	applyOverrides(rules, r.rules.ByRating, sel.Rating)
	applyOverrides(rules, r.rules.ByPlatform, sel.Platform)

	profile := Profile{Name: name, Rules: rules}
	r.cache.Set(name, profile, gocache.DefaultExpiration)
	return profile.clone()
}

// clone copies the rule map so a caller mutating the returned profile cannot
// poison the cached entry.
func (p Profile) clone() Profile {
	rules := make(map[Category]Action, len(p.Rules))
	for category, action := range p.Rules {
		rules[category] = action
	}
	return Profile{Name: p.Name, Rules: rules}
}

func applyOverrides(rules map[Category]Action, dimension Overrides, key string) {
	overrides, ok := dimension[strings.TrimSpace(key)]
	if !ok {
		return
	}
	for category, proposed := range overrides {
		rules[category] = Stricter(rules[category], proposed)
	}
}

// ProfileName derives the reproducible profile name for a selector triple:
// the three values joined by underscores with whitespace runs collapsed to
// underscores.
func ProfileName(sel Selector) string {
	parts := []string{sel.Platform, sel.Rating, sel.Region}
	for i, part := range parts {
		parts[i] = strings.Join(strings.Fields(part), "_")
	}
	return strings.Join(parts, "_")
}
