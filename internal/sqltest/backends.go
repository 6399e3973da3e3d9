//go:build !integration_test

package sqltest

// enabledBackends returns the backends available without external services.
func enabledBackends() []backend {
	return []backend{
		{name: SQLite, dbFactory: NewSQLiteDB},
	}
}
