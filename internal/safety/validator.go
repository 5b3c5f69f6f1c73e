// Package safety validates generated SQL against the read-only policy:
// exactly one SELECT statement, no modification keywords, no identifiers
// outside the schema selection, and a row limit on high-cardinality tables.
// The validator never rewrites SQL; correction is always delegated back to
// generation.
package safety

import (
	"strings"

	"github.com/claimscope/claimscope/internal/schema"
)

// forbiddenKeywords are rejected wherever they appear as statement-level
// tokens, including inside subqueries. Literals and comments are already
// stripped by the tokenizer.
var forbiddenKeywords = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "TRUNCATE": {},
	"ALTER": {}, "CREATE": {}, "MERGE": {}, "GRANT": {}, "REVOKE": {},
	"EXEC": {}, "EXECUTE": {}, "CALL": {}, "COMMIT": {}, "ROLLBACK": {},
	"COPY": {}, "VACUUM": {}, "ANALYZE": {}, "SET": {}, "DO": {}, "INTO": {},
}

// sqlKeywords are tokens the identifier check skips. Function names are
// recognized positionally (identifier followed by an opening paren) and do
// not need listing here.
var sqlKeywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "JOIN": {}, "INNER": {}, "LEFT": {},
	"RIGHT": {}, "FULL": {}, "OUTER": {}, "CROSS": {}, "ON": {}, "USING": {},
	"AND": {}, "OR": {}, "NOT": {}, "NULL": {}, "IS": {}, "IN": {},
	"BETWEEN": {}, "LIKE": {}, "ILIKE": {}, "AS": {}, "CASE": {}, "WHEN": {},
	"THEN": {}, "ELSE": {}, "END": {}, "GROUP": {}, "BY": {}, "ORDER": {},
	"HAVING": {}, "LIMIT": {}, "OFFSET": {}, "FETCH": {}, "FIRST": {},
	"NEXT": {}, "ROW": {}, "ROWS": {}, "ONLY": {}, "DISTINCT": {},
	"UNION": {}, "EXCEPT": {}, "INTERSECT": {}, "ALL": {}, "ASC": {},
	"DESC": {}, "EXISTS": {}, "ANY": {}, "SOME": {}, "WITH": {},
	"INTERVAL": {}, "DATE": {}, "TIME": {}, "TIMESTAMP": {}, "TRUE": {},
	"FALSE": {}, "CURRENT_DATE": {}, "CURRENT_TIMESTAMP": {}, "NULLS": {},
	"LAST": {}, "ESCAPE": {},
}

// aggregateFunctions bound the result cardinality of an otherwise
// unlimited statement (a bare aggregate yields one row).
var aggregateFunctions = map[string]struct{}{
	"COUNT": {}, "SUM": {}, "AVG": {}, "MIN": {}, "MAX": {},
}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs the full pipeline over raw generator output. Stages
// short-circuit on first failure; each failure carries a Reason for the
// correction prompt. On success the accepted statement is returned as a
// ValidatedQuery, byte-identical to the extracted statement text.
func (v *Validator) Validate(raw string, selection schema.Selection) (ValidatedQuery, error) {
	cleaned := stripFences(raw)
	if strings.TrimSpace(cleaned) == "" {
		return ValidatedQuery{}, reject(ReasonEmpty, "generator returned no SQL")
	}

	tokens := tokenize(cleaned)
	statements := splitStatements(tokens)
	switch {
	case len(statements) == 0:
		return ValidatedQuery{}, reject(ReasonEmpty, "no statement found in generated text")
	case len(statements) > 1:
		return ValidatedQuery{}, reject(ReasonMultiStatement, "expected exactly one statement, found %d", len(statements))
	}
	statement := statements[0]

	leading := statement[0]
	if leading.kind != tokenIdent || (leading.upper() != "SELECT" && leading.upper() != "WITH") {
		return ValidatedQuery{}, reject(ReasonNotSelect, "statement must start with SELECT, found %q", leading.text)
	}

	for _, tok := range statement {
		if tok.kind != tokenIdent {
			continue
		}
		if _, forbidden := forbiddenKeywords[tok.upper()]; forbidden {
			return ValidatedQuery{}, reject(ReasonForbiddenKeyword, "forbidden keyword %q detected; only read-only SELECT statements are allowed", tok.upper())
		}
	}

	resolver := newIdentifierResolver(selection)
	if unknown := resolver.verify(statement); unknown != "" {
		return ValidatedQuery{}, reject(ReasonUnknownIdentifier, "identifier %q does not exist in the provided schema selection", unknown)
	}

	if err := checkRowBound(statement, resolver.referencedTables, selection); err != nil {
		return ValidatedQuery{}, err
	}

	return ValidatedQuery{sql: strings.TrimSpace(renderStatement(cleaned))}, nil
}

// checkRowBound rejects statements that touch a high-cardinality table
// without any row-limiting clause on the outer statement. Only tokens at
// parenthesis depth zero count: a LIMIT buried in a subquery does not bound
// the outer scan, and an aggregate clears the check only when it is a bare
// top-level aggregate (one output row), not a scalar subquery.
func checkRowBound(statement []token, referenced map[string]struct{}, selection schema.Selection) error {
	var highCardinality string
	for _, table := range selection.Tables {
		if !table.HighCardinality {
			continue
		}
		if _, used := referenced[strings.ToUpper(table.Name)]; used {
			highCardinality = table.Name
			break
		}
	}
	if highCardinality == "" {
		return nil
	}

	depth := 0
	for i, tok := range statement {
		if tok.kind == tokenPunct {
			switch tok.text {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			}
			continue
		}
		if tok.kind != tokenIdent || depth != 0 {
			continue
		}
		switch tok.upper() {
		case "LIMIT", "FETCH":
			return nil
		}
		if _, agg := aggregateFunctions[tok.upper()]; agg {
			if i+1 < len(statement) && statement[i+1].isPunct("(") {
				return nil
			}
		}
	}
	return reject(ReasonUnboundedScan, "table %q is high-cardinality; add LIMIT or FETCH FIRST N ROWS ONLY", highCardinality)
}

// renderStatement strips a trailing semicolon so the executor can wrap the
// statement if it needs to.
func renderStatement(cleaned string) string {
	return strings.TrimSuffix(strings.TrimSpace(cleaned), ";")
}

// identifierResolver checks every identifier in a statement against the
// schema selection. Aliases declared in the statement and output labels are
// collected first so they resolve; anything else unresolvable is rejected
// rather than passed through.
type identifierResolver struct {
	tables        map[string]struct{}
	columnsByTbl  map[string]map[string]struct{}
	allColumns    map[string]struct{}
	aliases       map[string]string
	derivedTables map[string]struct{}
	labels        map[string]struct{}

	referencedTables map[string]struct{}
}

func newIdentifierResolver(selection schema.Selection) *identifierResolver {
	r := &identifierResolver{
		tables:           map[string]struct{}{},
		columnsByTbl:     map[string]map[string]struct{}{},
		allColumns:       map[string]struct{}{},
		aliases:          map[string]string{},
		derivedTables:    map[string]struct{}{},
		labels:           map[string]struct{}{},
		referencedTables: map[string]struct{}{},
	}
	for _, table := range selection.Tables {
		name := strings.ToUpper(table.Name)
		r.tables[name] = struct{}{}
		cols := make(map[string]struct{}, len(table.Columns))
		for _, col := range table.Columns {
			upper := strings.ToUpper(col.Name)
			cols[upper] = struct{}{}
			r.allColumns[upper] = struct{}{}
		}
		r.columnsByTbl[name] = cols
	}
	return r
}

func (r *identifierResolver) verify(statement []token) string {
	r.collectAliases(statement)
	r.collectLabels(statement)

	for i := 0; i < len(statement); i++ {
		tok := statement[i]
		if tok.kind != tokenIdent {
			continue
		}
		upper := tok.upper()
		if _, kw := sqlKeywords[upper]; kw {
			continue
		}

		// Qualified reference: qualifier '.' column.
		if i+2 < len(statement) && statement[i+1].isPunct(".") {
			qualifier := upper
			column := statement[i+2]
			i += 2

			table, ok := r.resolveQualifier(qualifier)
			if !ok {
				return tok.text
			}
			if _, derived := r.derivedTables[table]; derived {
				continue
			}
			r.referencedTables[table] = struct{}{}
			if column.isPunct("*") {
				continue
			}
			if _, exists := r.columnsByTbl[table][column.upper()]; !exists {
				return tok.text + "." + column.text
			}
			continue
		}

		// Function call.
		if i+1 < len(statement) && statement[i+1].isPunct("(") {
			continue
		}

		if _, ok := r.tables[upper]; ok {
			r.referencedTables[upper] = struct{}{}
			continue
		}
		if _, ok := r.allColumns[upper]; ok {
			continue
		}
		if _, ok := r.aliases[upper]; ok {
			continue
		}
		if _, ok := r.derivedTables[upper]; ok {
			continue
		}
		if _, ok := r.labels[upper]; ok {
			continue
		}
		return tok.text
	}
	return ""
}

func (r *identifierResolver) resolveQualifier(qualifier string) (string, bool) {
	if table, ok := r.aliases[qualifier]; ok {
		return table, true
	}
	if _, ok := r.tables[qualifier]; ok {
		return qualifier, true
	}
	if _, ok := r.derivedTables[qualifier]; ok {
		return qualifier, true
	}
	return "", false
}

// collectAliases registers FROM-clause aliases ("asrit_case ac", "... AS ac"),
// CTE names and subquery aliases (") alias"). Columns of derived tables are
// not enumerable from the selection, so they resolve as wildcards.
func (r *identifierResolver) collectAliases(statement []token) {
	for i := 0; i < len(statement); i++ {
		tok := statement[i]
		if tok.kind != tokenIdent {
			// Subquery alias: closing paren followed by a bare identifier.
			if tok.isPunct(")") && i+1 < len(statement) {
				next := statement[i+1]
				offset := 1
				if next.kind == tokenIdent && next.upper() == "AS" && i+2 < len(statement) {
					next = statement[i+2]
					offset = 2
				}
				if next.kind == tokenIdent && !isKeyword(next.upper()) {
					if !(i+offset+1 < len(statement) && statement[i+offset+1].isPunct("(")) {
						r.derivedTables[next.upper()] = struct{}{}
					}
				}
			}
			continue
		}

		upper := tok.upper()
		if _, isTable := r.tables[upper]; !isTable {
			continue
		}

		// Table followed by [AS] alias.
		j := i + 1
		if j < len(statement) && statement[j].kind == tokenIdent && statement[j].upper() == "AS" {
			j++
		}
		if j < len(statement) && statement[j].kind == tokenIdent && !isKeyword(statement[j].upper()) {
			// Exclude function calls and qualified refs.
			if !(j+1 < len(statement) && (statement[j+1].isPunct("(") || statement[j+1].isPunct("."))) {
				r.aliases[statement[j].upper()] = upper
			}
		}
	}

	// CTE names: WITH a AS (...), b AS (...)
	for i := 0; i+2 < len(statement); i++ {
		if statement[i].kind != tokenIdent {
			continue
		}
		if upper := statement[i].upper(); upper != "WITH" {
			continue
		}
		for j := i + 1; j+1 < len(statement); j++ {
			if statement[j].kind == tokenIdent && statement[j+1].kind == tokenIdent &&
				statement[j+1].upper() == "AS" {
				r.derivedTables[statement[j].upper()] = struct{}{}
			}
			if statement[j].kind == tokenIdent && statement[j].upper() == "SELECT" {
				break
			}
		}
		break
	}
}

// collectLabels registers output labels: an identifier that directly follows
// a closing paren, a literal, another identifier or AS, and is not itself a
// qualifier or function call. "DECODE(...) preauth_amount" makes
// preauth_amount referenceable in ORDER BY.
func (r *identifierResolver) collectLabels(statement []token) {
	for i := 1; i < len(statement); i++ {
		tok := statement[i]
		if tok.kind != tokenIdent || isKeyword(tok.upper()) {
			continue
		}
		if i+1 < len(statement) && (statement[i+1].isPunct("(") || statement[i+1].isPunct(".")) {
			continue
		}
		prev := statement[i-1]
		labelPosition := prev.isPunct(")") ||
			prev.kind == tokenString || prev.kind == tokenNumber ||
			prev.kind == tokenIdent && (prev.upper() == "AS" || prev.upper() == "END" || !isKeyword(prev.upper()))
		if labelPosition {
			r.labels[tok.upper()] = struct{}{}
		}
	}
}

func isKeyword(upper string) bool {
	if _, ok := sqlKeywords[upper]; ok {
		return true
	}
	_, forbidden := forbiddenKeywords[upper]
	return forbidden
}
