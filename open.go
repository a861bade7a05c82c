package ruleadapter

import (
	"fmt"

	glebsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// dialectorFor maps a driver name to its GORM dialector. "sqlite" uses the
// pure-Go driver; "sqlite3" the cgo one.
func dialectorFor(driverName, dsn string) (gorm.Dialector, error) {
	switch driverName {
	case "sqlite":
		return glebsqlite.Open(dsn), nil
	case "sqlite3":
		return sqlite.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres", "pgx":
		return postgres.Open(dsn), nil
	case "sqlserver", "mssql":
		return sqlserver.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported driver name: %s", driverName)
}

// NewAdapter opens a new GORM connection for the named driver and wraps it.
// Supported driver names: sqlite, sqlite3, mysql, postgres, sqlserver.
func NewAdapter(driverName, dsn string, opts ...Option) (*Adapter, error) {
	dialector, err := dialectorFor(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %v", driverName, err)
	}
	return NewAdapterByDB(db, opts...)
}

// NewAdapterWithReplicas opens a primary connection for writes and registers
// the replica DSNs as read targets through the dbresolver plugin. Loads may
// observe replica lag; writes always hit the primary.
func NewAdapterWithReplicas(driverName, dsn string, replicaDSNs []string, opts ...Option) (*Adapter, error) {
	dialector, err := dialectorFor(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %v", driverName, err)
	}

	replicas := make([]gorm.Dialector, 0, len(replicaDSNs))
	for _, replicaDSN := range replicaDSNs {
		replica, err := dialectorFor(driverName, replicaDSN)
		if err != nil {
			return nil, err
		}
		replicas = append(replicas, replica)
	}
	if err := db.Use(dbresolver.Register(dbresolver.Config{Replicas: replicas})); err != nil {
		return nil, fmt.Errorf("failed to register read replicas: %v", err)
	}
	return NewAdapterByDB(db, opts...)
}
