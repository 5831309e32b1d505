package service

import "strings"

// CategoryRule maps one knowledge category to its trigger keywords.
type CategoryRule struct {
	Category string
	Keywords []string
}

// CategoryDetector classifies a query into zero or one knowledge category
// using substring rules. Detection is deterministic: rules are evaluated in
// declaration order and the first match wins.
type CategoryDetector struct {
	rules []CategoryRule
}

func NewCategoryDetector(rules []CategoryRule) *CategoryDetector {
	return &CategoryDetector{rules: rules}
}

// DefaultCategoryDetector returns the detector for the built-in divination
// categories.
func DefaultCategoryDetector() *CategoryDetector {
	return NewCategoryDetector(defaultCategoryRules)
}

// Detect returns the first category whose keywords contain a substring of
// the query, or "" when no rule matches. Keyword matching is case-sensitive
// per stored keyword. A non-match is not an error.
func (d *CategoryDetector) Detect(query string) string {
	for _, rule := range d.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(query, keyword) {
				return rule.Category
			}
		}
	}
	return ""
}

// Categories returns the category labels in declaration order.
func (d *CategoryDetector) Categories() []string {
	names := make([]string, 0, len(d.rules))
	for _, rule := range d.rules {
		names = append(names, rule.Category)
	}
	return names
}

// defaultCategoryRules is the process-wide keyword table, loaded once.
// Order matters: the I Ching rules come first so hexagram queries resolve
// there even when they also mention divination in general.
var defaultCategoryRules = []CategoryRule{
	{Category: "易经", Keywords: []string{"易经", "卦象", "八卦", "乾坤", "爻", "周易", "乾卦", "坤卦", "震卦", "巽卦", "坎卦", "离卦", "艮卦", "兑卦"}},
	{Category: "六十四卦", Keywords: []string{"六十四卦", "卦辞", "卦名"}},
	{Category: "梅花易数", Keywords: []string{"梅花易数", "梅花", "起卦", "预测"}},
	{Category: "风水", Keywords: []string{"风水", "堪舆", "阳宅", "阴宅", "罗盘", "方位"}},
	{Category: "面相手相", Keywords: []string{"面相", "手相", "面部", "手纹", "掌纹", "相术"}},
	{Category: "星座", Keywords: []string{"星座", "白羊", "金牛", "双子", "巨蟹", "狮子", "处女", "天秤", "天蝎", "射手", "摩羯", "水瓶", "双鱼"}},
	{Category: "周公解梦", Keywords: []string{"解梦", "梦见", "做梦", "梦境"}},
}
