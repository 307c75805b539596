//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package engine

import (
	"errors"
	"fmt"

	"github.com/markkurossi/irismpc/env"
	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/rng"
	"github.com/markkurossi/irismpc/shares"
)

// ErrEmpty is returned when querying a share database with no
// entries.
var ErrEmpty = errors.New("engine: empty share database")

// ShareDB holds one party's replicated shares of the database
// vectors and multiplies them with replicated query shares. The
// result of a query is the party's additive share of the plaintext
// dot products, blinded with the correlated masks.
type ShareDB struct {
	Role   shares.Role
	Width  int
	Timing *Timing

	config *env.Config
	rng    *rng.CorrRNG
	log    *logging.Logger
	db     *Limbs
}

// NewShareDB creates a share database for the role. The vectors in
// the database and in the queries have width elements.
func NewShareDB(role shares.Role, width int, corr *rng.CorrRNG,
	config *env.Config, log *logging.Logger) (*ShareDB, error) {

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %d", shares.ErrRole, role)
	}
	if err := field.CheckWidth(2 * width); err != nil {
		return nil, err
	}
	return &ShareDB{
		Role:   role,
		Width:  width,
		Timing: NewTiming(),
		config: config,
		rng:    corr,
		log:    logging.OrDiscard(log).With("party", role.String()),
	}, nil
}

// Len returns the number of database entries.
func (db *ShareDB) Len() int {
	if db.db == nil {
		return 0
	}
	return db.db.Rows
}

// Load loads the database entries. Each entry row is the party's own
// share followed by the previous party's share.
func (db *ShareDB) Load(entries []shares.Pair) error {
	rows := make([][]field.Element, len(entries))
	for i, e := range entries {
		if len(e.Share0) != db.Width || len(e.Share1) != db.Width {
			return fmt.Errorf("%w: entry %d: got %d/%d elements, expected %d",
				shares.ErrLength, i, len(e.Share0), len(e.Share1), db.Width)
		}
		row := make([]field.Element, 0, 2*db.Width)
		row = append(row, e.Share0...)
		row = append(row, e.Share1...)
		rows[i] = row
	}
	m, err := NewMatrix(rows...)
	if err != nil {
		return err
	}
	m.Width = 2 * db.Width
	db.db = Preprocess(m)
	db.Timing.Sample("Load", []string{fmt.Sprintf("%d", len(entries))})
	db.log.Debugf("loaded %d entries", len(entries))
	return nil
}

// Query multiplies the database with the queries. The result has
// Len()*len(queries) elements: element idx is the share of the dot
// product of entry idx%Len() and query idx/Len().
//
// With the party holding (x_i, x_{i-1}) of an entry and (y_i,
// y_{i-1}) of a query, the share is x_i*(y_i+y_{i-1}) + x_{i-1}*y_i;
// the shares of the three parties sum to x*y.
func (db *ShareDB) Query(queries []shares.Pair) ([]field.Element, error) {
	if db.Len() == 0 {
		return nil, ErrEmpty
	}
	if len(queries) == 0 {
		return nil, nil
	}
	rows := make([][]field.Element, len(queries))
	for i, q := range queries {
		if len(q.Share0) != db.Width || len(q.Share1) != db.Width {
			return nil, fmt.Errorf("%w: query %d: got %d/%d elements, expected %d",
				shares.ErrLength, i, len(q.Share0), len(q.Share1), db.Width)
		}
		row := make([]field.Element, 2*db.Width)
		for k := 0; k < db.Width; k++ {
			row[k] = field.Add(q.Share0[k], q.Share1[k])
			row[db.Width+k] = q.Share0[k]
		}
		rows[i] = row
	}
	m, err := NewMatrix(rows...)
	if err != nil {
		return nil, err
	}
	q := Preprocess(m)
	sums := NewSums(db.db, q)
	db.Timing.Sample("Preprocess", nil)

	workers := db.config.GetWorkers()
	acc, err := Dot(db.db, q, workers)
	if err != nil {
		return nil, err
	}
	db.Timing.Sample("Dot", nil)

	params := KernelParams{
		NumRows: db.db.Rows,
		NumCols: q.Rows,
		Width:   2 * db.Width,
		Workers: workers,
	}
	m0, m1 := db.rng.Masks(params.NumElements())
	result, err := Kernel(params, acc, sums, 1, m0, m1)
	if err != nil {
		return nil, err
	}
	db.Timing.Sample("Reduce", []string{fmt.Sprintf("%d", len(result))})
	db.log.Debugf("query: %dx%d", params.NumRows, params.NumCols)

	return result, nil
}
