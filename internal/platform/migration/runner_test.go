// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/gatekeep/internal/platform/migration"
)

/*
TestToPgx5DSN verifies scheme rewriting for golang-migrate.
*/
func TestToPgx5DSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"postgres_scheme", "postgres://u:p@db:5432/kv", "pgx5://u:p@db:5432/kv"},
		{"postgresql_scheme", "postgresql://db/kv", "pgx5://db/kv"},
		{"already_pgx5", "pgx5://db/kv", "pgx5://db/kv"},
		{"keyword_dsn", "host=db dbname=kv", "host=db dbname=kv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, migration.ToPgx5DSN(tt.in))
		})
	}
}
