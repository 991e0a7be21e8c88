// Package queries runs ad hoc queries for the API and CLI.
package queries

import (
	"context"
	"fmt"

	"github.com/xz3dev/quacklytics-sub000/code/query"
)

// Runner executes a query against the engine
type Runner interface {
	RunQuery(ctx context.Context, q query.Query) ([]map[string]any, error)
}

// RunRequest represents the input for running a query
type RunRequest struct {
	Query query.Query `json:"query"`
	// Explain returns the compiled SQL without executing it
	Explain bool `json:"explain,omitempty"`
}

// RunResponse represents the output of a query
type RunResponse struct {
	SQL    string           `json:"sql"`
	Params []any            `json:"params"`
	Rows   []map[string]any `json:"rows,omitempty"`
}

// Run compiles req.Query and, unless only an explanation was asked for, executes it
func Run(ctx context.Context, runner Runner, req RunRequest) (*RunResponse, error) {
	text, params := query.Build(req.Query)
	resp := &RunResponse{SQL: text, Params: params}
	if req.Explain {
		return resp, nil
	}
	rows, err := runner.RunQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	resp.Rows = rows
	return resp, nil
}
