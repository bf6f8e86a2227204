package pg

import (
	"fmt"

	"github.com/freightdesk/convoy/internal/store"
)

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(cfg store.Config) (*store.Stores, error) {
	db, err := OpenDB(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg stores: %w", err)
	}
	return &store.Stores{
		Debounce: NewDebounceStore(db),
		Ledger:   NewLedgerStore(db),
		History:  NewHistoryStore(db),
		Close:    db.Close,
	}, nil
}
