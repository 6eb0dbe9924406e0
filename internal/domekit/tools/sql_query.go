package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/pathsafe"
	"github.com/domekit-run/domekit/internal/domekit/policy"
)

// SQLQuery is the sql_query built-in tool. It opens the target database in
// the SQLite driver's read-only mode (mode=ro) so a malicious or buggy query
// cannot mutate data: no layer above the connection inspects the statement
// itself, so read-only mode is what blocks writes. It complements, and does
// not replace, the database allow-list check below.
type SQLQuery struct {
	engine   *policy.Engine
	manifest func() *manifestspec.Manifest
}

// NewSQLQuery returns a sql_query tool that consults engine for the
// per-database allow-list and manifest for the tool's max_rows/max_bytes
// configuration.
func NewSQLQuery(engine *policy.Engine, manifest func() *manifestspec.Manifest) *SQLQuery {
	return &SQLQuery{engine: engine, manifest: manifest}
}

func (t *SQLQuery) Definition() message.ToolDefinition {
	return message.ToolDefinition{
		Type: "function",
		Function: message.FunctionDef{
			Name:        "sql_query",
			Description: "Run a read-only SQL query against an allow-listed SQLite database.",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"db_path", "query"},
				"properties": map[string]interface{}{
					"db_path": map[string]interface{}{"type": "string", "description": "Absolute path to the SQLite database file."},
					"query":   map[string]interface{}{"type": "string", "description": "A single SELECT statement."},
				},
			},
		},
	}
}

func (t *SQLQuery) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	dbPath, _ := args["db_path"].(string)
	query, _ := args["query"].(string)
	if dbPath == "" || query == "" {
		return "", fmt.Errorf("sql_query: db_path and query are required")
	}

	// Canonicalize once here and hand that exact string to both the policy
	// check and sql.Open, so the path actually opened is byte-for-byte the
	// one the policy check vetted, not the raw model-supplied string — a
	// symlink swapped in between the check and the open would otherwise
	// reintroduce the traversal gap canonicalization exists to close.
	canonical, err := pathsafe.Canonicalize(dbPath)
	if err != nil {
		return "", fmt.Errorf("sql_query: canonicalize db_path: %w", err)
	}

	decision := t.engine.CheckSQLite(canonical)
	if !decision.Allowed() {
		return "", fmt.Errorf("sql_query: denied: %s", decision.Reason)
	}

	db, err := sql.Open("sqlite", "file:"+canonical+"?mode=ro")
	if err != nil {
		return "", fmt.Errorf("sql_query: open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("sql_query: execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("sql_query: read columns: %w", err)
	}

	cfg := t.manifest().ToolConfig("sql_query")
	maxRows := cfg.MaxRows
	maxBytes := cfg.MaxBytes

	var results []map[string]interface{}
	var totalBytes int64
	truncated := false

	for rows.Next() {
		if len(results) >= maxRows {
			truncated = true
			break
		}

		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("sql_query: scan row: %w", err)
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}

		encoded, err := json.Marshal(row)
		if err != nil {
			return "", fmt.Errorf("sql_query: encode row: %w", err)
		}
		if totalBytes+int64(len(encoded)) > maxBytes {
			truncated = true
			break
		}
		totalBytes += int64(len(encoded))
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("sql_query: iterate rows: %w", err)
	}

	out := map[string]interface{}{
		"columns":   cols,
		"rows":      results,
		"truncated": truncated,
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("sql_query: encode result: %w", err)
	}
	return string(encoded), nil
}

// tableNamePattern extracts the table names a SELECT statement references
// from its FROM/JOIN clauses. Best-effort and used only to populate the
// request trace's tables_queried set, never for policy decisions.
var tableNamePattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+"?'?([A-Za-z_][A-Za-z0-9_]*)"?'?`)

// TablesReferenced returns the distinct table names query appears to read
// from, in first-appearance order.
func TablesReferenced(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range tableNamePattern.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
