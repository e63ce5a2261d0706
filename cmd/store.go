package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/gridscout/gridscout/internal/store"
)

// openStore opens the configured backend and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// latestRun returns the most recent completed run.
func latestRun(ctx context.Context, st store.Store) (*store.Run, error) {
	runs, err := st.ListRuns(ctx, store.RunFilter{Status: store.RunStatusComplete, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, eris.New("no completed runs, execute `gridscout run` first")
	}
	return &runs[0], nil
}
