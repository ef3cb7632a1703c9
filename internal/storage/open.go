package storage

import (
	"errors"
	"strings"

	logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"
)

// Open initializes the configured store.
// It returns ErrDisabled if storage is disabled: the scheduler has nothing to read.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
