package config

// DefaultMajorKeywords is the built-in relevance list used when
// MAJOR_KEYWORDS is not set. ASCII keywords match as whole words; CJK
// keywords match as substrings.
func DefaultMajorKeywords() []string {
	return []string{
		"breaking",
		"urgent",
		"election",
		"war",
		"ceasefire",
		"attack",
		"missile",
		"killed",
		"dead",
		"explosion",
		"earthquake",
		"flood",
		"hurricane",
		"wildfire",
		"sanction",
		"supreme court",
		"white house",
		"fed",
		"interest rate",
		"inflation",
		"recession",
		"bankruptcy",
		"merger",
		"acquisition",
		"ipo",
		"earnings",
		"tariff",
		"taiwan",
		"south china sea",
		"trump",
		"xi jinping",
		"习近平",
		"巴以冲突",
		"israel",
		"israeli",
		"palestine",
		"palestinian",
		"gaza",
		"hamas",
		"west bank",
		"俄乌战争",
		"ukraine",
		"ukrainian",
		"russia",
		"russian",
		"putin",
		"zelensky",
		"kyiv",
		"moscow",
		"乌克兰",
		"俄罗斯",
		"eu",
		"europe",
		"european",
		"eurozone",
		"ecb",
		"brussels",
		"africa",
		"african",
		"非洲",
		"sudan",
		"darfur",
		"congo",
		"drc",
		"somalia",
		"sahel",
		"boko haram",
		"al-shabaab",
		"greenland",
		"格陵兰",
		"格陵兰岛",
		"southeast asia",
		"asean",
		"东南亚",
		"philippines",
		"vietnam",
		"thailand",
		"myanmar",
		"indonesia",
		"malaysia",
		"singapore",
		"cambodia",
		"laos",
	}
}
