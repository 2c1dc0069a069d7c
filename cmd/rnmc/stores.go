package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nvandessel/rnmc/internal/network"
	"github.com/nvandessel/rnmc/internal/store"
)

// loadNetwork reads a network definition for inspection. Both stores are
// opened read-only.
func loadNetwork(ctx context.Context, networkPath, statePath string, opts network.Options) (*network.ReactionNetwork, error) {
	statePath = store.ResolveStatePath(networkPath, statePath)
	for _, p := range []string{networkPath, statePath} {
		if err := store.RequireFile(p); err != nil {
			return nil, err
		}
	}

	networkDB, err := store.OpenNetworkStore(networkPath)
	if err != nil {
		return nil, err
	}
	defer networkDB.Close()

	stateDB := networkDB
	if !store.SamePath(networkPath, statePath) {
		stateDB, err = store.OpenNetworkStore(statePath)
		if err != nil {
			return nil, err
		}
		defer stateDB.Close()
	}

	return buildNetwork(ctx, networkDB, stateDB, opts)
}

// openRunStores opens the results store at the state path and reads the
// network definition. The results store's connection is shared with any
// network or state database living in the same file.
func openRunStores(ctx context.Context, networkPath, statePath string, netOpts network.Options, resultOpts ...store.ResultsOption) (*store.SQLiteResultsStore, *network.ReactionNetwork, error) {
	statePath = store.ResolveStatePath(networkPath, statePath)
	for _, p := range []string{networkPath, statePath} {
		if err := store.RequireFile(p); err != nil {
			return nil, nil, err
		}
	}

	results, err := store.NewSQLiteResultsStore(statePath, resultOpts...)
	if err != nil {
		return nil, nil, err
	}

	networkDB := results.DB()
	if !store.SamePath(networkPath, statePath) {
		networkDB, err = store.OpenNetworkStore(networkPath)
		if err != nil {
			results.Close()
			return nil, nil, err
		}
		defer networkDB.Close()
	}

	net, err := buildNetwork(ctx, networkDB, results.DB(), netOpts)
	if err != nil {
		results.Close()
		return nil, nil, err
	}
	return results, net, nil
}

func buildNetwork(ctx context.Context, networkDB, stateDB *sql.DB, opts network.Options) (*network.ReactionNetwork, error) {
	def, err := store.LoadDefinition(ctx, networkDB, stateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to load reaction network: %w", err)
	}
	net, err := network.New(def, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build reaction network: %w", err)
	}
	return net, nil
}

// openResults opens an existing results store.
func openResults(path string) (*store.SQLiteResultsStore, error) {
	if path == "" {
		return nil, fmt.Errorf("--results-db is required")
	}
	if err := store.RequireFile(path); err != nil {
		return nil, err
	}
	return store.NewSQLiteResultsStore(path)
}
