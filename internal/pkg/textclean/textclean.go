// Package textclean holds the shared cleaning rules applied to text harvested
// from search result pages. Both the extractor and the cleanup pass use it so
// that freshly harvested and re-cleaned data agree.
package textclean

import (
	"regexp"
	"strings"
)

var (
	reTimestamp = regexp.MustCompile(`\d+:\d+`)
	rePrice     = regexp.MustCompile(`\$\d+\.\d+`)
	reSiteMark  = regexp.MustCompile(`YouTube\s·\s.*|www\..*\.com|https?://.*`)
	reViews     = regexp.MustCompile(`\d+[KM]?\+?\sviews\s·\s\w+\s\d+.*|\d+\s\w+\sago`)
	reSpecial   = regexp.MustCompile("[\"“”·\\\\|]")
	reCurbside  = regexp.MustCompile(`CURBSIDE.*Pick up today`)
	reRating    = regexp.MustCompile(`\d+\.\d+\(\d+[k+]?\)`)
	reQuotePair = regexp.MustCompile(`".*"\s·\s".*"`)
	reNumeric   = regexp.MustCompile(`^\d+$`)
)

// junkPhrases disqualify a harvested string as a keyword when present
// anywhere in the lowercased text.
var junkPhrases = []string{
	"more products", "see more", "view all", "shop now", "curbside",
	"pick up today", "amazon.com", "target", "30-day returns", "view all posts",
}

// Clean strips timestamps, prices, site markers, view counts, ratings and
// stray punctuation from page text, then collapses whitespace. Fragments of
// two characters or fewer clean down to the empty string.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = reTimestamp.ReplaceAllString(text, "")
	text = rePrice.ReplaceAllString(text, "")
	text = reSiteMark.ReplaceAllString(text, "")
	text = reViews.ReplaceAllString(text, "")
	text = reSpecial.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	text = reCurbside.ReplaceAllString(text, "")
	text = reRating.ReplaceAllString(text, "")
	text = reQuotePair.ReplaceAllString(text, "")

	text = strings.TrimSpace(text)
	if len(text) <= 2 {
		return ""
	}
	return text
}

// IsValidKeyword reports whether a cleaned string is worth keeping: long
// enough, not a bare number, and free of junk phrases.
func IsValidKeyword(text string) bool {
	if len(text) <= 3 {
		return false
	}
	if reNumeric.MatchString(strings.ReplaceAll(text, ".", "")) {
		return false
	}
	return !ContainsJunk(text)
}

// ContainsJunk reports whether the text contains any junk phrase.
func ContainsJunk(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range junkPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// DedupeExact removes exact duplicates while preserving order. Questions keep
// their casing, so only byte-identical repeats collapse.
func DedupeExact(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Dedupe removes duplicates case-insensitively while preserving order.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Slug turns a keyword into its artifact filename stem: lowercase, spaces to
// underscores, at most 50 characters.
func Slug(keyword string) string {
	slug := strings.ReplaceAll(strings.ToLower(keyword), " ", "_")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return slug
}
