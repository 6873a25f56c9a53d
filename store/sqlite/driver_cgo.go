//go:build cgo_sqlite

package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// dsn builds a mattn/go-sqlite3 DSN, one _key=value per pragma.
func dsn(path string, pragmas [][2]string) string {
	s := path
	for i, p := range pragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		s += sep + "_" + p[0] + "=" + p[1]
	}
	return s
}
