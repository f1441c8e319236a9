package policy

// BuiltinRules returns the shipped override tables. All overrides are
// escalations from the all-ALLOWED baseline; the resolver's merge keeps that
// property even if a loaded rule set introduces overlapping categories.
func BuiltinRules() RuleSet {
	return RuleSet{
		ByRegion: Overrides{
			"Middle East": {
				CategoryAlcohol:         ActionBlockSegment,
				CategorySkin:            ActionPixelate,
				CategoryReligion:        ActionBlur,
				CategoryDrugs:           ActionBlockSegment,
				CategoryProfanityStrong: ActionMute,
			},
			"Europe": {
				CategoryTobacco: ActionBlur,
			},
			"United States": {
				CategoryProfanityStrong: ActionBeep,
			},
		},
		ByRating: Overrides{
			"Kids": {
				CategoryAlcohol:         ActionObjectReplace,
				CategoryTobacco:         ActionObjectReplace,
				CategoryDrugs:           ActionBlockSegment,
				CategoryWeapons:         ActionObjectReplace,
				CategorySkin:            ActionBlur,
				CategoryProfanityMild:   ActionBeep,
				CategoryProfanityStrong: ActionWordDub,
			},
			"Teens": {
				CategoryDrugs:           ActionBlur,
				CategoryProfanityStrong: ActionBeep,
			},
		},
		ByPlatform: Overrides{
			"YouTube": {
				CategoryLogos: ActionBlur,
			},
			"TikTok": {
				CategoryTobacco: ActionPixelate,
				CategoryLogos:   ActionBlur,
			},
		},
	}
}
