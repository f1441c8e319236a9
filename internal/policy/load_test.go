package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuleSet(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadRuleSetOverridesOneDimension(t *testing.T) {
	t.Parallel()

	path := writeRuleSet(t, `
regions:
  Middle East:
    alcohol: BLOCK_SEGMENT
    logos: PIXELATE
`)
	rules, err := LoadRuleSet(path)
	require.NoError(t, err)

	profile := NewResolverWithRules(rules).Resolve(Selector{
		Platform: "YouTube",
		Rating:   "Kids",
		Region:   "Middle East",
	})
	// Loaded region table replaces the builtin one, untouched dimensions keep
	// their builtin tables.
	assert.Equal(t, ActionPixelate, profile.Rule(CategoryLogos))
	assert.Equal(t, ActionBlockSegment, profile.Rule(CategoryAlcohol))
	assert.Equal(t, ActionObjectReplace, profile.Rule(CategoryWeapons))
}

func TestLoadRuleSetRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	path := writeRuleSet(t, `
platforms:
  YouTube:
    logos: SEPIA
`)
	_, err := LoadRuleSet(path)
	require.Error(t, err)
}

func TestLoadRuleSetMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadRuleSet(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
