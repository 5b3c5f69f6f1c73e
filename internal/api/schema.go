package api

import (
	"net/http"
	"time"

	"github.com/claimscope/claimscope/internal/config"
	"github.com/claimscope/claimscope/internal/schema"
)

type schemaColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type schemaTable struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Columns         []schemaColumn `json:"columns"`
	HighCardinality bool           `json:"high_cardinality"`
	EstimatedRows   int64          `json:"estimated_rows"`
}

type schemaResponse struct {
	Epoch   int64         `json:"epoch"`
	BuiltAt time.Time     `json:"built_at"`
	Stale   bool          `json:"stale"`
	Tables  []schemaTable `json:"tables"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}

	snapshot, err := deps.Pipeline.Schema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(snapshot.Catalog, snapshot.Stale))
}

func handleSchemaRefresh(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(cfg, r, "schema_admin"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	catalog, err := deps.Pipeline.RefreshSchema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_REFRESH_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(catalog, false))
}

func toSchemaResponse(catalog *schema.Catalog, stale bool) schemaResponse {
	response := schemaResponse{Stale: stale, Tables: []schemaTable{}}
	if catalog == nil {
		return response
	}
	response.Epoch = catalog.Epoch
	response.BuiltAt = catalog.BuiltAt
	for _, table := range catalog.Tables {
		columns := make([]schemaColumn, 0, len(table.Columns))
		for _, col := range table.Columns {
			columns = append(columns, schemaColumn{
				Name:     col.Name,
				Type:     string(col.Type),
				Nullable: col.Nullable,
			})
		}
		response.Tables = append(response.Tables, schemaTable{
			Name:            table.Name,
			Description:     table.Description,
			Columns:         columns,
			HighCardinality: table.HighCardinality,
			EstimatedRows:   table.EstimatedRows,
		})
	}
	return response
}
