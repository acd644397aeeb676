package risk

import "strings"

// group keyword tables of §4.6. Checked in order; the first match wins, so
// more specific groups should be listed ahead of broader ones if keywords
// ever overlap (they don't, currently).
var groupKeywords = []struct {
	group    string
	keywords []string
}{
	{"election", []string{"election", "politics"}},
	{"crypto", []string{"btc", "eth", "crypto"}},
	{"stocks", []string{"sp500", "nasdaq", "dow"}},
	{"sports", []string{"nba", "nfl", "mlb"}},
	{"economy", []string{"gdp", "cpi", "fed", "rate"}},
}

// GroupOf derives a market's correlation group from keywords in its title.
// A title matching none of the known keyword sets falls into "other".
func GroupOf(title string) string {
	lower := strings.ToLower(title)
	for _, g := range groupKeywords {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.group
			}
		}
	}
	return "other"
}
