package queries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xz3dev/quacklytics-sub000/code/query"
)

type countingRunner struct{ calls int }

func (r *countingRunner) RunQuery(context.Context, query.Query) ([]map[string]any, error) {
	r.calls++
	return []map[string]any{{"n": int64(3)}}, nil
}

func TestRun(t *testing.T) {
	runner := &countingRunner{}
	q := query.Query{Aggregations: []query.Aggregation{{Function: query.Count, Alias: "n"}}}

	resp, err := Run(context.Background(), runner, RunRequest{Query: q, Explain: true})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS "n" FROM events`, resp.SQL)
	assert.Nil(t, resp.Rows)
	assert.Zero(t, runner.calls)

	resp, err = Run(context.Background(), runner, RunRequest{Query: q})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"n": int64(3)}}, resp.Rows)
	assert.Equal(t, 1, runner.calls)
}
