package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := Config{User: "booking", Pass: "s3cret", Host: "db", Port: "3306", Name: "azurestay"}
	assert.Equal(t,
		"booking:s3cret@tcp(db:3306)/azurestay?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.dsn())
}

func TestDSNWithoutPassword(t *testing.T) {
	cfg := Config{User: "booking", Host: "localhost", Port: "3306", Name: "azurestay"}
	assert.Equal(t,
		"booking@tcp(localhost:3306)/azurestay?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.dsn())
}

func TestWithDefaults(t *testing.T) {
	got := Config{}.withDefaults()
	assert.Equal(t, 25, got.MaxOpenConns)
	assert.Equal(t, 25, got.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, got.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, got.PingTimeout)

	// Idle pool follows a custom open limit unless set explicitly.
	got = Config{MaxOpenConns: 10}.withDefaults()
	assert.Equal(t, 10, got.MaxIdleConns)

	got = Config{MaxOpenConns: 10, MaxIdleConns: 4, ConnMaxLifetime: time.Hour, PingTimeout: time.Second}.withDefaults()
	assert.Equal(t, 4, got.MaxIdleConns)
	assert.Equal(t, time.Hour, got.ConnMaxLifetime)
	assert.Equal(t, time.Second, got.PingTimeout)
}
