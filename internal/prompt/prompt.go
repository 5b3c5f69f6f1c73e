// Package prompt assembles generation requests: safety instruction, schema
// context, few-shot examples and, on retry, a correction section built from
// previously rejected attempts. Composition is byte-deterministic for
// identical inputs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/claimscope/claimscope/internal/schema"
)

// Example is one few-shot question→SQL pair.
type Example struct {
	Question string
	SQL      string
}

// RejectedAttempt carries what a prior attempt produced and why it was
// turned down, so the next prompt can steer away from the same failure.
type RejectedAttempt struct {
	SQL    string
	Reason string
}

const safetyInstruction = `You are a SQL assistant for a medical claims reporting warehouse. Convert the user's natural language question into exactly one SQL query.

CRITICAL RULES:
1. Produce exactly ONE read-only SELECT statement. No INSERT, UPDATE, DELETE, DROP, TRUNCATE, ALTER, CREATE, MERGE, GRANT, REVOKE or any other statement type.
2. Return ONLY the SQL statement, without explanations or comments.
3. Use ONLY the tables and columns listed in the schema below. Never invent identifiers.
4. Every query must have a FROM clause naming at least one table from the schema.
5. Use standard SQL. Limit results with LIMIT or FETCH FIRST N ROWS ONLY when the question implies a bounded report.
6. For conditional value selection use CASE expressions; for per-case counts from related tables use a grouped subquery; for date arithmetic use interval math.`

// Compose builds the full generation prompt. Section order is fixed:
// instruction, schema, correction (when priorAttempts is non-empty),
// examples, question.
func Compose(question string, selection schema.Selection, examples []Example, priorAttempts []RejectedAttempt) string {
	var b strings.Builder

	b.WriteString(safetyInstruction)
	b.WriteString("\n\nAVAILABLE SCHEMA - THESE ARE THE ONLY TABLES AND COLUMNS YOU CAN USE:\n")
	b.WriteString(FormatSchema(selection))

	if len(priorAttempts) > 0 {
		b.WriteString("\n\nPREVIOUS ATTEMPTS WERE REJECTED. Do not repeat these mistakes:\n")
		for i, attempt := range priorAttempts {
			fmt.Fprintf(&b, "Attempt %d SQL:\n%s\nRejected because: %s\n", i+1, strings.TrimSpace(attempt.SQL), attempt.Reason)
		}
		b.WriteString("Generate a corrected query that avoids every failure listed above.\n")
	}

	if len(examples) > 0 {
		b.WriteString("\nEXAMPLES:\n")
		for _, example := range examples {
			fmt.Fprintf(&b, "Question: %s\nSQL: %s\n\n", example.Question, example.SQL)
		}
	}

	fmt.Fprintf(&b, "USER QUESTION: %s\n\n", question)
	b.WriteString("Generate a complete SQL query using ONLY the tables and columns from the schema above.\nSQL QUERY:")
	return b.String()
}

// FormatSchema serializes a selection as one "TABLE: NAME (COL, COL...)" line
// per table, in selection order.
func FormatSchema(selection schema.Selection) string {
	lines := make([]string, 0, len(selection.Tables))
	for _, table := range selection.Tables {
		cols := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			cols = append(cols, col.Name)
		}
		lines = append(lines, fmt.Sprintf("TABLE: %s (%s)", table.Name, strings.Join(cols, ", ")))
	}
	return strings.Join(lines, "\n")
}
