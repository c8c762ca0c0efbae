package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		User:     "tix",
		Password: "p@ss word",
		Name:     "cinema",
		Host:     "db",
		Port:     5433,
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://tix:p%40ss%20word@db:5433/cinema?sslmode=disable", cfg.DSN())
}

func TestMigrationsEmbedded(t *testing.T) {
	b, err := migrations.ReadFile("migrations/0001_init.sql")
	assert.NoError(t, err)
	assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS showtime_seats")
}

func TestMigrationsCascadeBookingLines(t *testing.T) {
	b, err := migrations.ReadFile("migrations/0001_init.sql")
	assert.NoError(t, err)

	sql := string(b)
	assert.Equal(t, 2, strings.Count(sql, "REFERENCES bookings(id) ON DELETE CASCADE"))
	assert.NotContains(t, sql, "REFERENCES bookings(id),")
}
