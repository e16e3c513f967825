package storage

import (
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsConnError(t *testing.T) {
	t.Parallel()

	assert.True(t, isConnError(driver.ErrBadConn))
	assert.True(t, isConnError(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnError(errors.New("write: broken pipe")))
	assert.True(t, isConnError(&pq.Error{Code: "08006"}), "class 08 is a connection exception")

	assert.False(t, isConnError(&pq.Error{Code: "23505"}), "unique violation is not a connection error")
	assert.False(t, isConnError(errors.New("syntax error at or near")))
}

func TestNullableHelpers(t *testing.T) {
	t.Parallel()

	assert.Nil(t, nullableString(""))
	assert.Nil(t, nullableString("   "))
	assert.Equal(t, "text", nullableString("text"))

	assert.Nil(t, nullableTime(nil))
	now := time.Now()
	assert.Equal(t, now, nullableTime(&now))
}
