package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMigrateExecutesEmbeddedFiles(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return len(sql) > 0
	}), mock.Anything).Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, Migrate(context.Background(), dbtx))
	assert.GreaterOrEqual(t, len(dbtx.Calls), 1)
}
