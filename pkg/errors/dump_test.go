package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpPostgresFault(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "promotions_code_key", TableName: "promotions", Message: "duplicate key"}
	err := Wrap(CodeConflict, fmt.Errorf("insert promotion: %w", pgErr), "promotion code already exists")

	d := Dump(err)
	assert.Equal(t, CodeConflict, d.Code)
	assert.Len(t, d.Chain, 3)
	require.NotNil(t, d.Postgres)
	assert.Equal(t, "23505", d.Postgres.Code)

	fields := d.Fields()
	assert.Equal(t, "promotions_code_key", fields["pg_constraint"])
	assert.Equal(t, CodeConflict, fields["error_code"])
}

func TestDumpPlainError(t *testing.T) {
	d := Dump(fmt.Errorf("boom"))
	assert.Nil(t, d.Postgres)

	fields := d.Fields()
	assert.Equal(t, "boom", fields["error"])
	assert.NotContains(t, fields, "pg_code")
	assert.NotContains(t, fields, "error_chain")
	assert.NotContains(t, fields, "error_code")
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
