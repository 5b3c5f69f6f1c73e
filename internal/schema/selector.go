package schema

import (
	"sort"
	"strings"
	"unicode"
)

// Selector ranks catalog tables by relevance to a question. Implementations
// must be deterministic for a fixed (question, catalog epoch) pair and must
// never return an empty selection for a non-empty catalog.
type Selector interface {
	Select(question string, catalog *Catalog, topK int) Selection
}

// KeywordSelector scores token overlap between the question and each table's
// name, description and column names. Table-name hits weigh heaviest, then
// description, then columns. Ties break by catalog declaration order.
type KeywordSelector struct {
	// MinScore is the relevance floor; purely advisory. Tables below it are
	// still returned when nothing scores higher, so generation always has
	// schema context to work with.
	MinScore float64
}

const (
	tableNameWeight   = 3.0
	descriptionWeight = 2.0
	columnWeight      = 1.0
)

func NewKeywordSelector() *KeywordSelector {
	return &KeywordSelector{MinScore: 1.0}
}

func (s *KeywordSelector) Select(question string, catalog *Catalog, topK int) Selection {
	if catalog == nil || catalog.Len() == 0 {
		return Selection{}
	}
	if topK < 1 {
		topK = 1
	}
	if topK > catalog.Len() {
		topK = catalog.Len()
	}

	terms := tokenizeQuestion(question)

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, catalog.Len())
	for i, table := range catalog.Tables {
		ranked = append(ranked, scored{index: i, score: scoreTable(table, terms)})
	}

	// Stable sort keeps declaration order for equal scores.
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	picked := ranked[:topK]
	// Re-order the picked set by declaration order so the serialized schema
	// context is byte-stable regardless of score distribution.
	sort.Slice(picked, func(a, b int) bool {
		return picked[a].index < picked[b].index
	})

	selection := Selection{Epoch: catalog.Epoch, Tables: make([]Table, 0, len(picked))}
	for _, entry := range picked {
		selection.Tables = append(selection.Tables, catalog.Tables[entry.index])
	}
	return selection
}

func scoreTable(table Table, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	name := normalizeToken(table.Name)
	description := strings.ToLower(table.Description)
	columns := make([]string, 0, len(table.Columns))
	for _, col := range table.Columns {
		columns = append(columns, normalizeToken(col.Name))
	}

	var score float64
	for _, term := range terms {
		if strings.Contains(name, term) {
			score += tableNameWeight
		}
		if strings.Contains(description, term) {
			score += descriptionWeight
		}
		for _, col := range columns {
			if strings.Contains(col, term) {
				score += columnWeight
				break
			}
		}
	}
	return score
}

var questionStopwords = map[string]struct{}{
	"a": {}, "all": {}, "and": {}, "are": {}, "by": {}, "for": {}, "from": {},
	"give": {}, "how": {}, "in": {}, "is": {}, "list": {}, "many": {}, "me": {},
	"of": {}, "on": {}, "per": {}, "show": {}, "the": {}, "to": {}, "what": {},
	"which": {}, "with": {},
}

func tokenizeQuestion(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	seen := map[string]struct{}{}
	for _, field := range fields {
		if len(field) < 2 {
			continue
		}
		if _, stop := questionStopwords[field]; stop {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
	}
	return terms
}

// normalizeToken folds identifier separators so "ration card" can hit
// RATION_CARD_NO.
func normalizeToken(identifier string) string {
	return strings.ReplaceAll(strings.ToLower(identifier), "_", " ")
}
