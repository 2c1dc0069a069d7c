package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nvandessel/rnmc/internal/network"

	_ "modernc.org/sqlite" // SQLite driver
)

// absentSlot marks an unused reactant or product column.
const absentSlot = -1

// OpenNetworkStore opens a reaction network store for reading.
func OpenNetworkStore(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open network store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open network store %s: %w", path, err)
	}
	return db, nil
}

// LoadDefinition reads the metadata and reactions tables from networkDB and the
// initial_state table from stateDB. Both may be the same database.
func LoadDefinition(ctx context.Context, networkDB, stateDB *sql.DB) (network.Definition, error) {
	var def network.Definition

	for _, required := range []struct {
		db    *sql.DB
		table string
	}{
		{networkDB, "metadata"},
		{networkDB, "reactions"},
		{stateDB, "initial_state"},
	} {
		ok, err := tableExists(ctx, required.db, required.table)
		if err != nil {
			return def, err
		}
		if !ok {
			return def, fmt.Errorf("%w: %s", ErrMissingTable, required.table)
		}
	}

	var numReactions int
	err := networkDB.QueryRowContext(ctx, `
		SELECT number_of_species, number_of_reactions, factor_zero, factor_two, factor_duplicate
		FROM metadata`).Scan(&def.NumSpecies, &numReactions, &def.FactorZero, &def.FactorTwo, &def.FactorDuplicate)
	if errors.Is(err, sql.ErrNoRows) {
		return def, fmt.Errorf("metadata table is empty")
	}
	if err != nil {
		return def, fmt.Errorf("failed to read metadata: %w", err)
	}
	if def.NumSpecies < 0 || numReactions < 0 {
		return def, fmt.Errorf("metadata has negative counts: species=%d reactions=%d", def.NumSpecies, numReactions)
	}

	reactions, err := loadReactions(ctx, networkDB, numReactions)
	if err != nil {
		return def, err
	}
	def.Reactions = reactions

	state, err := loadInitialState(ctx, stateDB, def.NumSpecies)
	if err != nil {
		return def, err
	}
	def.InitialState = state

	return def, nil
}

// loadReactions reads the reactions table, indexed by reaction_id.
func loadReactions(ctx context.Context, db *sql.DB, numReactions int) ([]network.Reaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT reaction_id, number_of_reactants, number_of_products,
		       reactant_1, reactant_2, product_1, product_2, rate
		FROM reactions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer rows.Close()

	reactions := make([]network.Reaction, numReactions)
	seen := make([]bool, numReactions)
	count := 0

	for rows.Next() {
		var (
			id, nReactants, nProducts int
			r1, r2, p1, p2            int
			rate                      float64
		)
		if err := rows.Scan(&id, &nReactants, &nProducts, &r1, &r2, &p1, &p2, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		if id < 0 || id >= numReactions {
			return nil, fmt.Errorf("reaction_id %d out of range [0, %d)", id, numReactions)
		}
		if seen[id] {
			return nil, fmt.Errorf("reaction_id %d appears twice", id)
		}
		seen[id] = true
		count++

		reactants, err := slots(nReactants, r1, r2)
		if err != nil {
			return nil, fmt.Errorf("reaction %d reactants: %w", id, err)
		}
		products, err := slots(nProducts, p1, p2)
		if err != nil {
			return nil, fmt.Errorf("reaction %d products: %w", id, err)
		}
		reactions[id] = network.Reaction{Reactants: reactants, Products: products, Rate: rate}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reactions: %w", err)
	}

	if count != numReactions {
		return nil, fmt.Errorf("reactions table has %d rows, metadata declares %d", count, numReactions)
	}
	return reactions, nil
}

// slots converts a count and two nullable-by-convention columns into a list.
func slots(n, first, second int) ([]int, error) {
	switch n {
	case 0:
		return nil, nil
	case 1:
		if first == absentSlot {
			return nil, fmt.Errorf("declared 1 entry but first slot is absent")
		}
		return []int{first}, nil
	case 2:
		if first == absentSlot || second == absentSlot {
			return nil, fmt.Errorf("declared 2 entries but a slot is absent")
		}
		return []int{first, second}, nil
	default:
		return nil, fmt.Errorf("count %d not in 0..%d", n, network.MaxParticipants)
	}
}

// loadInitialState reads one population per species.
func loadInitialState(ctx context.Context, db *sql.DB, numSpecies int) ([]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT species_id, count FROM initial_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query initial_state: %w", err)
	}
	defer rows.Close()

	state := make([]int, numSpecies)
	seen := make([]bool, numSpecies)
	count := 0
	for rows.Next() {
		var species, population int
		if err := rows.Scan(&species, &population); err != nil {
			return nil, fmt.Errorf("failed to scan initial_state: %w", err)
		}
		if species < 0 || species >= numSpecies {
			return nil, fmt.Errorf("initial_state species_id %d out of range [0, %d)", species, numSpecies)
		}
		if seen[species] {
			return nil, fmt.Errorf("initial_state species_id %d appears twice", species)
		}
		seen[species] = true
		state[species] = population
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read initial_state: %w", err)
	}

	if count != numSpecies {
		return nil, fmt.Errorf("initial_state has %d rows, metadata declares %d species", count, numSpecies)
	}
	return state, nil
}

// CreateNetworkSchema creates the metadata, reactions and initial_state tables.
func CreateNetworkSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, networkSchema+initialStateSchema); err != nil {
		return fmt.Errorf("failed to create network tables: %w", err)
	}
	return nil
}

// WriteDefinition stores def into db, which must already hold the network
// schema. The initial state is written to the same database.
func WriteDefinition(ctx context.Context, db *sql.DB, def network.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (number_of_species, number_of_reactions, factor_zero, factor_two, factor_duplicate)
		VALUES (?, ?, ?, ?, ?)`,
		def.NumSpecies, len(def.Reactions), def.FactorZero, def.FactorTwo, def.FactorDuplicate); err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reactions (reaction_id, number_of_reactants, number_of_products,
		                       reactant_1, reactant_2, product_1, product_2, rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare reaction insert: %w", err)
	}
	defer stmt.Close()

	for id, rxn := range def.Reactions {
		r := padSlots(rxn.Reactants)
		p := padSlots(rxn.Products)
		if _, err := stmt.ExecContext(ctx, id, len(rxn.Reactants), len(rxn.Products),
			r[0], r[1], p[0], p[1], rxn.Rate); err != nil {
			return fmt.Errorf("failed to insert reaction %d: %w", id, err)
		}
	}

	if err := writeInitialState(ctx, tx, def.InitialState); err != nil {
		return err
	}

	return tx.Commit()
}

// WriteInitialState stores a population vector into a separate state store.
func WriteInitialState(ctx context.Context, db *sql.DB, state []int) error {
	if _, err := db.ExecContext(ctx, initialStateSchema); err != nil {
		return fmt.Errorf("failed to create initial_state table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeInitialState(ctx, tx, state); err != nil {
		return err
	}
	return tx.Commit()
}

func writeInitialState(ctx context.Context, tx *sql.Tx, state []int) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO initial_state (species_id, count) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare initial_state insert: %w", err)
	}
	defer stmt.Close()

	for species, count := range state {
		if _, err := stmt.ExecContext(ctx, species, count); err != nil {
			return fmt.Errorf("failed to insert initial state for species %d: %w", species, err)
		}
	}
	return nil
}

func padSlots(species []int) [network.MaxParticipants]int {
	out := [network.MaxParticipants]int{absentSlot, absentSlot}
	copy(out[:], species)
	return out
}
