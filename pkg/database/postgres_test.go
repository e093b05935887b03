package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-erp-api/pkg/config"
)

func TestConnectionStrings(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5433, User: "erp", Password: "p@ss", Name: "school", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5433 user=erp password=p@ss dbname=school sslmode=disable", DSN(cfg))
	assert.Equal(t, "postgres://erp:p%40ss@db:5433/school?sslmode=disable", URL(cfg))
}
