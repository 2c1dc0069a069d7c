package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nvandessel/rnmc/internal/network"
)

func testNetworkDefinition() network.Definition {
	return network.Definition{
		NumSpecies: 3,
		Reactions: []network.Reaction{
			{Products: []int{0}, Rate: 1.5},
			{Reactants: []int{0, 0}, Products: []int{1}, Rate: 0.25},
			{Reactants: []int{1, 2}, Products: []int{0, 2}, Rate: 2},
			{Reactants: []int{2}, Rate: 0.1},
		},
		InitialState:    []int{10, 0, 4},
		FactorZero:      1,
		FactorTwo:       0.5,
		FactorDuplicate: 0.5,
	}
}

func openWritable(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// writeNetworkStore creates a network store holding def at path.
func writeNetworkStore(t *testing.T, path string, def network.Definition) {
	t.Helper()
	ctx := context.Background()
	db := openWritable(t, path)
	if err := CreateNetworkSchema(ctx, db); err != nil {
		t.Fatalf("CreateNetworkSchema() error = %v", err)
	}
	if err := WriteDefinition(ctx, db, def); err != nil {
		t.Fatalf("WriteDefinition() error = %v", err)
	}
}

func TestLoadDefinition_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.db")
	def := testNetworkDefinition()
	writeNetworkStore(t, path, def)

	db, err := OpenNetworkStore(path)
	if err != nil {
		t.Fatalf("OpenNetworkStore() error = %v", err)
	}
	defer db.Close()

	got, err := LoadDefinition(context.Background(), db, db)
	if err != nil {
		t.Fatalf("LoadDefinition() error = %v", err)
	}
	if !reflect.DeepEqual(got, def) {
		t.Errorf("LoadDefinition() = %+v\nwant %+v", got, def)
	}
}

func TestLoadDefinition_SeparateStateStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	netPath := filepath.Join(dir, "network.db")
	statePath := filepath.Join(dir, "state.db")

	writeNetworkStore(t, netPath, testNetworkDefinition())

	state := openWritable(t, statePath)
	if err := WriteInitialState(ctx, state, []int{1, 2, 3}); err != nil {
		t.Fatalf("WriteInitialState() error = %v", err)
	}

	netDB, err := OpenNetworkStore(netPath)
	if err != nil {
		t.Fatalf("OpenNetworkStore() error = %v", err)
	}
	defer netDB.Close()

	got, err := LoadDefinition(ctx, netDB, state)
	if err != nil {
		t.Fatalf("LoadDefinition() error = %v", err)
	}
	if !reflect.DeepEqual(got.InitialState, []int{1, 2, 3}) {
		t.Errorf("InitialState = %v, want [1 2 3]", got.InitialState)
	}
}

func TestLoadDefinition_MissingTable(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	netPath := filepath.Join(dir, "network.db")
	writeNetworkStore(t, netPath, testNetworkDefinition())

	// A fresh file has no initial_state table.
	empty := openWritable(t, filepath.Join(dir, "empty.db"))

	netDB, err := OpenNetworkStore(netPath)
	if err != nil {
		t.Fatalf("OpenNetworkStore() error = %v", err)
	}
	defer netDB.Close()

	_, err = LoadDefinition(ctx, netDB, empty)
	if !errors.Is(err, ErrMissingTable) {
		t.Fatalf("LoadDefinition() error = %v, want ErrMissingTable", err)
	}
	if !strings.Contains(err.Error(), "initial_state") {
		t.Errorf("error %q does not name the missing table", err)
	}
}

func TestLoadDefinition_RejectsInconsistentStores(t *testing.T) {
	tests := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			name:    "metadata declares more reactions",
			mutate:  `UPDATE metadata SET number_of_reactions = 5`,
			wantErr: "metadata declares 5",
		},
		{
			name:    "reaction id out of range",
			mutate:  `UPDATE reactions SET reaction_id = 9 WHERE reaction_id = 3`,
			wantErr: "out of range",
		},
		{
			name:    "missing species row",
			mutate:  `DELETE FROM initial_state WHERE species_id = 1`,
			wantErr: "initial_state has 2 rows",
		},
		{
			name:    "reactant count without species",
			mutate:  `UPDATE reactions SET reactant_2 = -1 WHERE reaction_id = 2`,
			wantErr: "slot is absent",
		},
		{
			name:    "empty metadata",
			mutate:  `DELETE FROM metadata`,
			wantErr: "metadata table is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "network.db")
			writeNetworkStore(t, path, testNetworkDefinition())

			db := openWritable(t, path)
			if _, err := db.Exec(tt.mutate); err != nil {
				t.Fatalf("mutate error = %v", err)
			}

			_, err := LoadDefinition(context.Background(), db, db)
			if err == nil {
				t.Fatal("LoadDefinition() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadDefinition() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefinition_RejectsInvalid(t *testing.T) {
	db := openWritable(t, filepath.Join(t.TempDir(), "network.db"))
	ctx := context.Background()
	if err := CreateNetworkSchema(ctx, db); err != nil {
		t.Fatalf("CreateNetworkSchema() error = %v", err)
	}

	def := testNetworkDefinition()
	def.Reactions[0].Products = []int{7}
	if err := WriteDefinition(ctx, db, def); !errors.Is(err, network.ErrInvalidDefinition) {
		t.Errorf("WriteDefinition() error = %v, want ErrInvalidDefinition", err)
	}
}
