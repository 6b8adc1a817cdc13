package database

import "fmt"

// Open creates the role cache Store at the given SQLite DSN.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("role cache dsn must not be empty")
	}
	return NewSQLiteStore(dsn)
}
