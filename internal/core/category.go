package core

import "strings"

// Category is an email's purpose/importance bucket.
type Category string

const (
	CategoryWichtig            Category = "wichtig"
	CategoryActionRequired     Category = "action_required"
	CategoryNiceToKnow         Category = "nice_to_know"
	CategoryNewsletter         Category = "newsletter"
	CategorySpam               Category = "spam"
	CategorySystemNotification Category = "system_notifications"

	// Fine-grained scheme additions
	CategoryRechnung Category = "rechnung"
	CategoryTermin   Category = "termin"
	CategoryWerbung  Category = "werbung"
	CategorySozial   Category = "sozial"
)

// CategorySet is the vocabulary the pipeline classifies into. The pipeline
// itself is agnostic to which set is configured; the set only affects LLM
// prompting and response validation.
type CategorySet struct {
	name   string
	values []Category
	index  map[Category]struct{}
}

// NewCategorySet builds a named set from an explicit list of categories.
func NewCategorySet(name string, values ...Category) CategorySet {
	index := make(map[Category]struct{}, len(values))
	for _, v := range values {
		index[v] = struct{}{}
	}
	return CategorySet{name: name, values: values, index: index}
}

// DefaultCategories is the standard six-value scheme.
func DefaultCategories() CategorySet {
	return NewCategorySet("default",
		CategoryWichtig,
		CategoryActionRequired,
		CategoryNiceToKnow,
		CategoryNewsletter,
		CategorySpam,
		CategorySystemNotification,
	)
}

// FineGrainedCategories is the alternate ten-value scheme. It is a strict
// superset of the default scheme.
func FineGrainedCategories() CategorySet {
	return NewCategorySet("fine",
		CategoryWichtig,
		CategoryActionRequired,
		CategoryNiceToKnow,
		CategoryNewsletter,
		CategorySpam,
		CategorySystemNotification,
		CategoryRechnung,
		CategoryTermin,
		CategoryWerbung,
		CategorySozial,
	)
}

// Name returns the configured name of the set.
func (s CategorySet) Name() string { return s.name }

// Values returns the categories in the set, in declaration order.
func (s CategorySet) Values() []Category {
	out := make([]Category, len(s.values))
	copy(out, s.values)
	return out
}

// Names returns the category names in declaration order, for prompt
// assembly.
func (s CategorySet) Names() []string {
	out := make([]string, len(s.values))
	for i, v := range s.values {
		out[i] = string(v)
	}
	return out
}

// Contains reports whether c is part of the set.
func (s CategorySet) Contains(c Category) bool {
	_, ok := s.index[c]
	return ok
}

// categoryAliases maps common LLM spellings onto canonical categories.
var categoryAliases = map[string]Category{
	"important":           CategoryWichtig,
	"importante":          CategoryWichtig,
	"urgent":              CategoryActionRequired,
	"action required":     CategoryActionRequired,
	"todo":                CategoryActionRequired,
	"fyi":                 CategoryNiceToKnow,
	"informational":       CategoryNiceToKnow,
	"info":                CategoryNiceToKnow,
	"mailing list":        CategoryNewsletter,
	"digest":              CategoryNewsletter,
	"junk":                CategorySpam,
	"phishing":            CategorySpam,
	"system notification": CategorySystemNotification,
	"system_notification": CategorySystemNotification,
	"notification":        CategorySystemNotification,
	"system":              CategorySystemNotification,
	"invoice":             CategoryRechnung,
	"billing":             CategoryRechnung,
	"appointment":         CategoryTermin,
	"meeting":             CategoryTermin,
	"promotion":           CategoryWerbung,
	"advertising":         CategoryWerbung,
	"social":              CategorySozial,
}

// Normalize maps a raw category string (typically from an LLM response)
// onto a member of the set. The second return is false when the string
// cannot be resolved to any category in the set.
func (s CategorySet) Normalize(raw string) (Category, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, `"'.`)
	candidate := Category(strings.ReplaceAll(cleaned, " ", "_"))
	if s.Contains(candidate) {
		return candidate, true
	}
	if alias, ok := categoryAliases[cleaned]; ok && s.Contains(alias) {
		return alias, true
	}
	// Hyphenated spellings ("nice-to-know")
	candidate = Category(strings.ReplaceAll(cleaned, "-", "_"))
	if s.Contains(candidate) {
		return candidate, true
	}
	return "", false
}
