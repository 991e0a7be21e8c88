package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBSupportsJSONColumns(t *testing.T) {
	ctx := context.Background()
	database, err := NewDB("", nil)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.CreateTable(ctx, "docs", "id INTEGER, properties JSON"))
	require.NoError(t, database.Write(ctx, `INSERT INTO docs VALUES (1, '{"plan":"pro","seats":3}')`))

	var plan string
	require.NoError(t, database.QueryRow(ctx,
		"SELECT json_extract_string(properties, '$.plan') FROM docs WHERE id = 1").Scan(&plan))
	assert.Equal(t, "pro", plan)
}
