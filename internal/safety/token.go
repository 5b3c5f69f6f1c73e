package safety

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenString
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) upper() string {
	return strings.ToUpper(t.text)
}

func (t token) isPunct(text string) bool {
	return t.kind == tokenPunct && t.text == text
}

// stripFences removes a surrounding markdown code fence, which generators
// routinely wrap SQL in despite instructions.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```sql")
	trimmed = strings.TrimPrefix(trimmed, "```SQL")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// tokenize lexes SQL text into tokens with comments dropped and string
// literals kept as single tokens, so later keyword and identifier scans never
// false-positive inside literals or comments.
func tokenize(text string) []token {
	var tokens []token
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2

		case r == '\'':
			start := i
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					// Doubled quote is an escaped quote inside the literal.
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			tokens = append(tokens, token{kind: tokenString, text: string(runes[start:min(i, len(runes))])})

		case r == '"':
			start := i + 1
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[start:min(i, len(runes))])})
			i++

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '$') {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[start:i])})

		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[start:i])})

		default:
			tokens = append(tokens, token{kind: tokenPunct, text: string(r)})
			i++
		}
	}
	return tokens
}

// splitStatements partitions a token stream on top-level semicolons and drops
// empty segments (a single trailing semicolon is not a second statement).
func splitStatements(tokens []token) [][]token {
	var statements [][]token
	var current []token
	for _, tok := range tokens {
		if tok.isPunct(";") {
			if len(current) > 0 {
				statements = append(statements, current)
				current = nil
			}
			continue
		}
		current = append(current, tok)
	}
	if len(current) > 0 {
		statements = append(statements, current)
	}
	return statements
}
