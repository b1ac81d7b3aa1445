package sqlutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringConverters(t *testing.T) {
	assert.Equal(t, sql.NullString{}, ToSqlString(nil))
	assert.Nil(t, FromSqlStringPtr(sql.NullString{}))

	note := "focused"
	ns := ToSqlString(&note)
	assert.Equal(t, sql.NullString{String: "focused", Valid: true}, ns)

	back := FromSqlStringPtr(ns)
	if assert.NotNil(t, back) {
		assert.Equal(t, note, *back)
	}

	empty := ""
	assert.True(t, ToSqlString(&empty).Valid)
}
