package style

import "strings"

// categoryKeywords maps profile category names to the words that signal
// them in image text. Categories not listed here match on their own name.
var categoryKeywords = map[string][]string{
	"dresses":    {"dress", "midi", "maxi", "gown", "sundress"},
	"tops":       {"top", "blouse", "shirt", "tee", "t-shirt", "sweater", "cardigan", "hoodie", "tank"},
	"bottoms":    {"pants", "trousers", "jeans", "skirt", "shorts", "leggings", "chinos"},
	"outerwear":  {"jacket", "coat", "blazer", "parka", "trench", "vest", "puffer"},
	"shoes":      {"shoe", "sneaker", "boot", "heel", "sandal", "loafer", "flat"},
	"knitwear":   {"knit", "sweater", "jumper", "cardigan", "pullover", "turtleneck"},
	"activewear": {"legging", "sports", "gym", "running", "yoga", "athletic", "training"},
	"accessories": {
		"bag", "belt", "scarf", "hat", "cap", "jewelry", "necklace",
		"bracelet", "earring", "sunglasses", "watch",
	},
}

// keywordsFor returns the signal words for a category, falling back to
// the lowercased category name itself.
func keywordsFor(category string) []string {
	key := strings.ToLower(strings.TrimSpace(category))
	if kws, ok := categoryKeywords[key]; ok {
		return kws
	}
	return []string{key}
}
