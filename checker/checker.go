//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package checker verifies that migrated replicated shares hold the
// same values as the legacy shares they were converted from.
package checker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/markkurossi/irismpc/env"
	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/metrics"
	"github.com/markkurossi/irismpc/shares"
	"github.com/markkurossi/irismpc/store"
)

var (
	// ErrStores is returned if fewer than two role stores are given.
	ErrStores = errors.New("checker: at least two role stores required")

	// ErrReference is returned if the reference identity can't be
	// reconstructed.
	ErrReference = errors.New("checker: invalid reference identity")
)

// Status defines sample check results.
type Status int

// Sample check results.
const (
	Match Status = iota
	Mismatch
	Failed
)

func (s Status) String() string {
	switch s {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("{Status %d}", s)
	}
}

func (s Status) metric() string {
	switch s {
	case Match:
		return metrics.ResultMatch
	case Mismatch:
		return metrics.ResultMismatch
	default:
		return metrics.ResultError
	}
}

// Options configure the check.
type Options struct {
	// Sample is the number of identities to check. Zero checks all
	// identities.
	Sample int
	// Seed seeds the identity sampling.
	Seed uint64
	// Tolerance is the maximum difference of the distances computed
	// from the two representations.
	Tolerance float64
	// Reference selects the identity the sampled identities are
	// compared against. If nil, distances are not checked.
	Reference *uint64

	Log *logging.Logger
}

// Values holds the reconstructed code and mask of an identity.
type Values struct {
	Code []field.Element
	Mask []field.Element
}

// Equal tests if the values are identical.
func (v Values) Equal(o Values) bool {
	return slices.Equal(v.Code, o.Code) && slices.Equal(v.Mask, o.Mask)
}

// Result is the check result of one identity.
type Result struct {
	ID      uint64
	Status  Status
	Details string

	// Distances to the reference identity from the legacy and
	// replicated representations. NaN if not computed or undefined.
	Legacy     float64
	Replicated float64
}

// Checker compares the legacy store with the role stores. It never
// modifies the stores.
type Checker struct {
	legacy     store.LegacyStore
	replicated map[shares.Role]store.ReplicatedStore
	roles      []shares.Role
	config     *env.Config
	opts       Options
	log        *logging.Logger
}

// New creates a checker for the legacy store and the role stores.
func New(legacy store.LegacyStore,
	replicated map[shares.Role]store.ReplicatedStore, config *env.Config,
	opts Options) (*Checker, error) {

	var roles []shares.Role
	for role := range replicated {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %v", shares.ErrRole, role)
		}
		roles = append(roles, role)
	}
	if len(roles) < 2 {
		return nil, ErrStores
	}
	slices.Sort(roles)

	return &Checker{
		legacy:     legacy,
		replicated: replicated,
		roles:      roles,
		config:     config,
		opts:       opts,
		log:        logging.OrDiscard(opts.Log),
	}, nil
}

// Run checks the sampled identities. Failures of individual
// identities are reported in the report; the returned error is
// non-nil only if the check could not be run at all.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	ids, err := c.candidates(ctx)
	if err != nil {
		return nil, err
	}
	ids = c.sample(ids)
	c.log.Info("checking identities", "candidates", len(ids),
		"roles", len(c.roles))

	report := &Report{
		Tolerance: c.opts.Tolerance,
		Results:   make([]Result, 0, len(ids)),
	}

	var ref *reference
	if c.opts.Reference != nil {
		ref, err = c.reference(ctx, *c.opts.Reference)
		if err != nil {
			return nil, err
		}
	}

	var pending []pendingDistance
	for _, id := range ids {
		result, records := c.check(ctx, id, ref)
		if records != nil {
			pending = append(pending, pendingDistance{
				idx:     len(report.Results),
				records: records,
			})
		}
		report.Results = append(report.Results, result)
	}
	if len(pending) > 0 {
		c.secureDistances(report, ref, pending)
	}
	for i := range report.Results {
		r := &report.Results[i]
		if r.Status == Match && ref != nil && !distanceMatch(r.Legacy,
			r.Replicated, c.opts.Tolerance) {
			r.Status = Mismatch
			r.Details = fmt.Sprintf("distance %v != %v", r.Legacy,
				r.Replicated)
		}
		if r.Status != Match {
			c.log.Warn("discrepancy", "id", r.ID, "status", r.Status,
				"details", r.Details)
		}
		metrics.RecordSample(r.Status.metric())
	}
	return report, nil
}

// candidates returns the identities present in every role store.
// Identities missing from the legacy store are reported as failures
// by check.
func (c *Checker) candidates(ctx context.Context) ([]uint64, error) {
	present := make(map[uint64]int)
	for _, role := range c.roles {
		ids, err := c.replicated[role].IDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("checker: %v store: %w", role, err)
		}
		for _, id := range ids {
			present[id]++
		}
	}
	var result []uint64
	var partial int
	for id, n := range present {
		if n != len(c.roles) {
			partial++
			continue
		}
		result = append(result, id)
	}
	if partial > 0 {
		c.log.Warn("identities missing from some role stores", "count", partial)
	}
	slices.Sort(result)
	return result, nil
}

func (c *Checker) sample(ids []uint64) []uint64 {
	if c.opts.Sample <= 0 || c.opts.Sample >= len(ids) {
		return ids
	}
	r := rand.New(rand.NewPCG(c.opts.Seed, uint64(len(ids))))
	r.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	ids = ids[:c.opts.Sample]
	slices.Sort(ids)
	return ids
}

// roleRecords holds the records of an identity, indexed by role.
type roleRecords map[shares.Role]store.ReplicatedRecord

// reference holds the reference identity's values.
type reference struct {
	id         uint64
	legacy     Values
	replicated Values
	// roles holds the reference records if all roles are present.
	roles roleRecords
}

func (c *Checker) reference(ctx context.Context, id uint64) (
	*reference, error) {

	legacy, err := c.readLegacy(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %w", ErrReference, id, err)
	}
	replicated, records, err := c.readReplicated(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %w", ErrReference, id, err)
	}
	if !legacy.Equal(replicated) {
		return nil, fmt.Errorf("%w: %d: %s", ErrReference, id,
			differences(legacy, replicated))
	}
	ref := &reference{
		id:         id,
		legacy:     legacy,
		replicated: replicated,
	}
	if len(c.roles) == shares.NumParties {
		ref.roles = records
	}
	return ref, nil
}

func (c *Checker) readLegacy(ctx context.Context, id uint64) (Values, error) {
	records, err := c.legacy.ReadRange(ctx, id, id+1)
	if err != nil {
		return Values{}, fmt.Errorf("legacy: %w", err)
	}
	if len(records) != 1 || records[0].ID != id {
		return Values{}, fmt.Errorf("legacy: %w", store.ErrNotFound)
	}
	code, err := shares.ShamirReconstruct(records[0].Code)
	if err != nil {
		return Values{}, fmt.Errorf("legacy code: %w", err)
	}
	mask, err := shares.ShamirReconstruct(records[0].Mask)
	if err != nil {
		return Values{}, fmt.Errorf("legacy mask: %w", err)
	}
	return Values{
		Code: code,
		Mask: mask,
	}, nil
}

// readReplicated reads the identity from the role stores and
// reconstructs it from every pair of adjacent roles. All
// reconstructions must agree.
func (c *Checker) readReplicated(ctx context.Context, id uint64) (
	Values, roleRecords, error) {

	records := make(roleRecords)
	for _, role := range c.roles {
		r, err := c.replicated[role].Read(ctx, id)
		if err != nil {
			return Values{}, nil, fmt.Errorf("%v: %w", role, err)
		}
		if r.Role != role {
			return Values{}, nil, fmt.Errorf("%v: record of %v", role, r.Role)
		}
		records[role] = r
	}

	var result Values
	for i, ra := range c.roles {
		if len(c.roles) == 2 && i > 0 {
			break
		}
		rb := c.roles[(i+1)%len(c.roles)]
		a, b := records[ra], records[rb]
		code, err := shares.Combine(a.Code, ra, b.Code, rb)
		if err != nil {
			return Values{}, nil, fmt.Errorf("%v+%v code: %w", ra, rb, err)
		}
		mask, err := shares.Combine(a.Mask, ra, b.Mask, rb)
		if err != nil {
			return Values{}, nil, fmt.Errorf("%v+%v mask: %w", ra, rb, err)
		}
		v := Values{
			Code: code,
			Mask: mask,
		}
		if i == 0 {
			result = v
		} else if !result.Equal(v) {
			return Values{}, nil, fmt.Errorf("roles %v+%v disagree with %v+%v",
				ra, rb, c.roles[0], c.roles[1])
		}
	}
	return result, records, nil
}

func (c *Checker) check(ctx context.Context, id uint64, ref *reference) (
	Result, roleRecords) {

	result := Result{
		ID:         id,
		Legacy:     math.NaN(),
		Replicated: math.NaN(),
	}
	legacy, err := c.readLegacy(ctx, id)
	if err != nil {
		result.Status = Failed
		result.Details = err.Error()
		return result, nil
	}
	replicated, records, err := c.readReplicated(ctx, id)
	if err != nil {
		result.Status = Failed
		result.Details = err.Error()
		return result, nil
	}
	if !legacy.Equal(replicated) {
		result.Status = Mismatch
		result.Details = differences(legacy, replicated)
		return result, nil
	}
	if ref == nil {
		return result, nil
	}

	result.Legacy, err = plainDistance(ref.legacy, legacy)
	if err != nil {
		result.Status = Failed
		result.Details = err.Error()
		return result, nil
	}
	if ref.roles == nil {
		result.Replicated, err = plainDistance(ref.replicated, replicated)
		if err != nil {
			result.Status = Failed
			result.Details = err.Error()
		}
		return result, nil
	}
	return result, records
}

func differences(a, b Values) string {
	count := func(x, y []field.Element) int {
		if len(x) != len(y) {
			return max(len(x), len(y))
		}
		var n int
		for i := range x {
			if x[i] != y[i] {
				n++
			}
		}
		return n
	}
	return fmt.Sprintf("code differs in %d, mask in %d elements",
		count(a.Code, b.Code), count(a.Mask, b.Mask))
}

func plainDistance(ref, v Values) (float64, error) {
	a, err := iris.Decode(ref.Code, ref.Mask)
	if err != nil {
		return math.NaN(), err
	}
	b, err := iris.Decode(v.Code, v.Mask)
	if err != nil {
		return math.NaN(), err
	}
	if a.Length != b.Length {
		return math.NaN(), fmt.Errorf("code length %d, reference %d",
			b.Length, a.Length)
	}
	d, ok := iris.Distance(a, b)
	if !ok {
		return math.NaN(), nil
	}
	return d, nil
}

func distanceMatch(a, b, tolerance float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= tolerance
}
