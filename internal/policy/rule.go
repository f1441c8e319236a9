package policy

import "fmt"

// Action is one remediation action from the fixed, totally ordered enforcement
// set. Ordering is by strictness rank; ranks 1-3 are reserved for future
// audio-only actions between ALLOWED and BEEP.
type Action string

const (
	ActionAllowed       Action = "ALLOWED"
	ActionBeep          Action = "BEEP"
	ActionMute          Action = "MUTE"
	ActionWordDub       Action = "WORD_DUB"
	ActionObjectReplace Action = "OBJECT_REPLACE"
	ActionBlur          Action = "BLUR"
	ActionPixelate      Action = "PIXELATE"
	ActionBlockSegment  Action = "BLOCK_SEGMENT"
)

var actionRanks = map[Action]int{
	ActionAllowed:       0,
	ActionBeep:          4,
	ActionMute:          5,
	ActionWordDub:       6,
	ActionObjectReplace: 7,
	ActionBlur:          8,
	ActionPixelate:      9,
	ActionBlockSegment:  10,
}

// Rank returns the strictness rank of the action. Unknown actions rank below
// ALLOWED so they can never displace a known rule during a merge.
func (a Action) Rank() int {
	rank, ok := actionRanks[a]
	if !ok {
		return -1
	}
	return rank
}

// Validate rejects actions outside the enforcement set.
func (a Action) Validate() error {
	if _, ok := actionRanks[a]; !ok {
		return fmt.Errorf("unsupported enforcement action %q", string(a))
	}
	return nil
}

// Stricter returns the maximum-strictness action of the pair.
func Stricter(current, proposed Action) Action {
	if proposed.Rank() > current.Rank() {
		return proposed
	}
	return current
}

// Category is a named class of regulated content.
type Category string

const (
	CategoryAlcohol         Category = "alcohol"
	CategorySkin            Category = "skin"
	CategoryReligion        Category = "religion"
	CategoryTobacco         Category = "tobacco"
	CategoryDrugs           Category = "drugs"
	CategoryWeapons         Category = "weapons"
	CategoryProfanityMild   Category = "profanity-mild"
	CategoryProfanityStrong Category = "profanity-strong"
	CategoryLogos           Category = "logos"
)

// Categories returns the regulated category set in stable order.
func Categories() []Category {
	return []Category{
		CategoryAlcohol,
		CategorySkin,
		CategoryReligion,
		CategoryTobacco,
		CategoryDrugs,
		CategoryWeapons,
		CategoryProfanityMild,
		CategoryProfanityStrong,
		CategoryLogos,
	}
}

// Validate rejects categories outside the regulated set.
func (c Category) Validate() error {
	for _, known := range Categories() {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("unsupported content category %q", string(c))
}
