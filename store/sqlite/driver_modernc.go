//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// dsn builds a modernc.org/sqlite DSN, one _pragma=key(value) per
// pragma.
func dsn(path string, pragmas [][2]string) string {
	s := path
	for i, p := range pragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		s += sep + "_pragma=" + p[0] + "(" + p[1] + ")"
	}
	return s
}
