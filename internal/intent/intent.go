// Package intent scores inbound customer text against known intent
// categories using a blend of fuzzy string similarity and keyword
// presence. Classification is deterministic and never fails for
// well-formed input: anything below the confidence floor is reported as
// the general intent with the observed confidence.
package intent

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// General is the fallback intent returned when no category clears the
// configured confidence floor.
const General = "general"

// Default category names, mirroring the production keyword sets.
const (
	Greeting       = "greeting"
	ProductQuery   = "product_query"
	ProductDetails = "product_details"
	OrderStatus    = "order_status"
)

// Category is a named intent with its matching keywords. Keywords are
// matched case-insensitively.
type Category struct {
	Name     string
	Keywords []string
}

// DefaultCategories returns the built-in intent set.
func DefaultCategories() []Category {
	return []Category{
		{Name: Greeting, Keywords: []string{"hello", "hi", "hey", "good morning", "good evening"}},
		{Name: ProductQuery, Keywords: []string{"find", "search", "product", "looking for", "do you have"}},
		{Name: ProductDetails, Keywords: []string{"details", "more info", "tell me about", "how much"}},
		{Name: OrderStatus, Keywords: []string{"order status", "track order", "where is my order", "delivery"}},
	}
}

// Result is the outcome of classifying one message.
type Result struct {
	Intent     string
	Confidence float64 // normalized to [0,1]
	Matched    int     // keywords present verbatim in the message
}

// Classifier scores text against an ordered category set.
// Safe for concurrent use; categories are immutable after construction.
type Classifier struct {
	categories []Category
	floor      float64
}

// NewClassifier creates a classifier with the given categories and
// confidence floor. Nil categories fall back to DefaultCategories.
func NewClassifier(categories []Category, floor float64) *Classifier {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	return &Classifier{categories: categories, floor: floor}
}

// Classify scores text against every category and returns the winner.
// Ties break toward the category with more keywords present, then toward
// the lexically smaller category name.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)

	best := Result{Intent: General}
	for _, cat := range c.categories {
		score, matched := scoreCategory(lower, cat.Keywords)
		switch {
		case score > best.Confidence,
			score == best.Confidence && matched > best.Matched,
			score == best.Confidence && matched == best.Matched &&
				best.Intent != General && cat.Name < best.Intent:
			best = Result{Intent: cat.Name, Confidence: score, Matched: matched}
		}
	}

	if best.Confidence < c.floor {
		return Result{Intent: General, Confidence: best.Confidence, Matched: best.Matched}
	}
	return best
}

// Floor returns the configured confidence floor.
func (c *Classifier) Floor() float64 { return c.floor }

// scoreCategory blends the best fuzzy keyword similarity (weight 0.8)
// with the fraction of keywords present verbatim (weight 0.2).
func scoreCategory(lower string, keywords []string) (float64, int) {
	if len(keywords) == 0 {
		return 0, 0
	}
	var bestFuzzy float64
	matched := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(lower, kw) {
			matched++
		}
		if f := partialSimilarity(lower, kw); f > bestFuzzy {
			bestFuzzy = f
		}
	}
	presence := float64(matched) / float64(len(keywords))
	return 0.8*bestFuzzy + 0.2*presence, matched
}

// partialSimilarity slides a window the length of the keyword across the
// text and returns the best normalized levenshtein similarity, the same
// shape as a partial ratio. Returns a value in [0,1].
func partialSimilarity(text, keyword string) float64 {
	kw := []rune(keyword)
	txt := []rune(text)
	if len(kw) == 0 || len(txt) == 0 {
		return 0
	}
	if len(txt) <= len(kw) {
		return similarity(string(txt), string(kw))
	}
	var best float64
	for i := 0; i+len(kw) <= len(txt); i++ {
		if s := similarity(string(txt[i:i+len(kw)]), string(kw)); s > best {
			best = s
			if best == 1 {
				break
			}
		}
	}
	return best
}

func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// EscalationMatcher detects explicit requests for a human agent.
type EscalationMatcher struct {
	phrases []string
}

// NewEscalationMatcher builds a matcher over the given phrases,
// normalized to lowercase. The phrase list is sorted so behavior does
// not depend on configuration order.
func NewEscalationMatcher(phrases []string) *EscalationMatcher {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	sort.Strings(normalized)
	return &EscalationMatcher{phrases: normalized}
}

// Match reports whether text contains any escalation phrase.
// Single-word phrases must appear as a whole word so "agent" does not
// fire inside "reagent". Multi-word phrases match as substrings.
func (m *EscalationMatcher) Match(text string) bool {
	lower := strings.ToLower(text)
	words := fieldsMap(lower)
	for _, p := range m.phrases {
		if strings.ContainsRune(p, ' ') {
			if strings.Contains(lower, p) {
				return true
			}
			continue
		}
		if _, ok := words[p]; ok {
			return true
		}
	}
	return false
}

func fieldsMap(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '\'' || r == '-' ||
		('a' <= r && r <= 'z') || ('0' <= r && r <= '9') ||
		('A' <= r && r <= 'Z')
}
