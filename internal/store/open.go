package store

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
)

// Storage drivers accepted by Open.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns the server store for driver rooted at path.
func Open(driver, path string, log logrus.FieldLogger) (domain.Store, error) {
	switch driver {
	case "", DriverBadger:
		return OpenBadger(BadgerConfig{Path: filepath.Join(path, "badger"), Logger: log})
	case DriverMemory:
		return OpenBadger(BadgerConfig{InMemory: true, Logger: log})
	case DriverSQLite:
		return OpenSQL(SQLConfig{Path: filepath.Join(path, "cipherlink.db"), Logger: log})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
