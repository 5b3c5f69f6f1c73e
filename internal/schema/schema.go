// Package schema holds the warehouse schema catalog: an immutable, epoched
// snapshot of table and column metadata, plus the relevance selector that picks
// the subset of tables a question needs.
package schema

import (
	"context"
	"strings"
	"time"
)

// ColumnType is the coarse semantic type used for selection and validation.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeNumber  ColumnType = "number"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
	TypeOther   ColumnType = "other"
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

type Table struct {
	Name        string
	Description string
	Columns     []Column
	// HighCardinality marks tables whose estimated row count exceeds the
	// configured threshold; statements against them must carry a row limit.
	HighCardinality bool
	EstimatedRows   int64
}

// Catalog is one immutable epoch of warehouse metadata. A refresh builds a new
// Catalog and swaps it in whole; an obtained Catalog never changes underneath
// its holder.
type Catalog struct {
	Epoch   int64
	BuiltAt time.Time
	Tables  []Table

	byName map[string]*Table
}

// NewCatalog builds a catalog from tables in declaration order. Order is
// significant: the selector uses it as the deterministic tie-break.
func NewCatalog(epoch int64, builtAt time.Time, tables []Table) *Catalog {
	c := &Catalog{
		Epoch:   epoch,
		BuiltAt: builtAt,
		Tables:  tables,
		byName:  make(map[string]*Table, len(tables)),
	}
	for i := range c.Tables {
		c.byName[strings.ToUpper(c.Tables[i].Name)] = &c.Tables[i]
	}
	return c
}

// Table looks a table up by name, case-insensitively.
func (c *Catalog) Table(name string) (Table, bool) {
	t, ok := c.byName[strings.ToUpper(name)]
	if !ok {
		return Table{}, false
	}
	return *t, true
}

func (c *Catalog) Len() int {
	return len(c.Tables)
}

// Selection is the subset of the catalog chosen for one question. It carries
// the epoch it was selected from so retries can detect a catalog change.
type Selection struct {
	Epoch  int64
	Tables []Table
}

func (s Selection) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Source loads raw table metadata from the warehouse's metadata views.
type Source interface {
	Load(ctx context.Context) ([]Table, error)
}
