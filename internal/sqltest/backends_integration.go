//go:build integration_test

package sqltest

// enabledBackends returns every backend, Postgres included.
func enabledBackends() []backend {
	return []backend{
		{name: Postgres, dbFactory: NewPostgresDB},
		{name: SQLite, dbFactory: NewSQLiteDB},
	}
}
