package cli

import (
	"fmt"

	"github.com/fortressi/chainable"
	"github.com/fortressi/chainable/config"
	"github.com/fortressi/chainable/sqlitestore"
)

// openStore opens the report store named by cfg. The returned close
// function is never nil.
func openStore(cfg config.StoreConfig) (chainable.Store, func() error, error) {
	nop := func() error { return nil }

	switch cfg.Driver {
	case "", "memory":
		return chainable.NewMemoryStore(), nop, nil
	case "file":
		s, err := chainable.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nop, err
		}
		return s, nop, nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nop, err
		}
		return s, s.Close, nil
	}
	return nil, nop, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
