package service

import "strings"

// KeywordExpander turns a query into the keyword list scanned during the
// ILIKE fallback. The raw query always comes first; domain synonyms are
// appended when a trigger term appears, so vague phrasings still hit the
// canonical corpus vocabulary.
type KeywordExpander struct {
	expansions []keywordExpansion
}

type keywordExpansion struct {
	triggers []string
	terms    []string
}

func DefaultKeywordExpander() *KeywordExpander {
	return &KeywordExpander{expansions: defaultExpansions}
}

// Expand returns the query followed by the synonym terms of every matched
// trigger, deduplicated and in stable order.
func (e *KeywordExpander) Expand(query string) []string {
	keywords := []string{query}
	seen := map[string]bool{query: true}
	for _, exp := range e.expansions {
		if !exp.matches(query) {
			continue
		}
		for _, term := range exp.terms {
			if seen[term] {
				continue
			}
			seen[term] = true
			keywords = append(keywords, term)
		}
	}
	return keywords
}

func (x keywordExpansion) matches(query string) bool {
	for _, trigger := range x.triggers {
		if strings.Contains(query, trigger) {
			return true
		}
	}
	return false
}

var defaultExpansions = []keywordExpansion{
	{triggers: []string{"乾卦", "乾为天"}, terms: []string{"乾", "乾为天", "周易", "易经"}},
	{triggers: []string{"梦见"}, terms: []string{"梦境", "做梦", "周公解梦"}},
	{triggers: []string{"手相", "面相"}, terms: []string{"相术", "掌纹", "面相学"}},
	{triggers: []string{"风水"}, terms: []string{"堪舆", "阳宅", "阴宅", "方位"}},
	{triggers: []string{"星座"}, terms: []string{"占星", "十二宫", "星座运势"}},
}
