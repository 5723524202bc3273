package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectMySQL is the MySQL dialect name.
	DialectMySQL = "mysql"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// IsMySQL reports whether the connection uses MySQL.
func IsMySQL(conn *gorm.DB) bool {
	return DialectName(conn) == DialectMySQL
}

// WithRowLock applies a SELECT ... FOR UPDATE row lock where the dialect
// supports it. SQLite serializes writers on the database itself, so the
// clause is omitted there.
func WithRowLock(tx *gorm.DB) *gorm.DB {
	if IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
