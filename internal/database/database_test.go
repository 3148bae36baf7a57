package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := &Client{DB: sqlx.NewDb(db, "postgres")}
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS hospitals")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, client.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	client := &Client{DB: sqlx.NewDb(db, "postgres")}
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = client.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running schema migration")
}

func TestSchemaHasUpsertKeys(t *testing.T) {
	assert.Contains(t, Schema, "UNIQUE (hospital_id, score_date)")
	assert.Contains(t, Schema, "UNIQUE (competitor_id, score_date)")
}
