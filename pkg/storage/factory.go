package storage

import (
	"fmt"

	"wsbridge/pkg/config"
)

// NewStore returns a concrete Store based on history configuration.
// The mysql backend expects a DSN with parseTime=true.
func NewStore(cfg config.HistoryConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return NewSQLiteStore(cfg.DSN)
	case "mysql":
		return NewMySQLStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.Backend)
	}
}
