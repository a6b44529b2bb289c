// Package split partitions a dataset into stratified cross-validation folds.
//
// Stratification for a continuous target works by sorting the records on
// their label and dealing consecutive runs across the folds, so every fold
// spans the full label range with a near-identical distribution.
package split

import (
	"math/rand"
	"sort"

	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// DefaultFolds is the fold count used by the standard evaluation protocol,
// giving an 80/10/10 train/validation/test rotation.
const DefaultFolds = 10

// Options configures the splitter.
type Options struct {
	// Folds is the number of folds; must be at least 3 so train, validation
	// and test are disjoint.
	Folds int
	// Seed drives the within-run shuffle. The same seed over the same
	// records yields the same assignment.
	Seed int64
}

func DefaultOptions() Options {
	return Options{Folds: DefaultFolds, Seed: 0}
}

// Assignment maps every record index to its fold. Folds partition the index
// space exactly: each index appears in exactly one fold.
type Assignment struct {
	Folds [][]int `json:"folds"`
	Seed  int64   `json:"seed"`
}

// NumFolds returns the number of folds in the assignment.
func (a *Assignment) NumFolds() int { return len(a.Folds) }

// FoldSplit names the three index sets for one cross-validation round.
type FoldSplit struct {
	Fold  int   `json:"fold"`
	Train []int `json:"train"`
	Val   []int `json:"val"`
	Test  []int `json:"test"`
}

// Splitter produces stratified fold assignments.
type Splitter struct {
	opts Options
}

func NewSplitter(opts Options) (*Splitter, error) {
	if opts.Folds < 3 {
		return nil, errors.Newf(errors.CodeSplitConfig, "need at least 3 folds, got %d", opts.Folds)
	}
	return &Splitter{opts: opts}, nil
}

// Assign stratifies the records into folds. Records are ordered by label,
// then dealt in consecutive runs of length Folds; within each run the fold
// order is shuffled so fold membership does not correlate with label rank.
func (s *Splitter) Assign(records []dataset.Record) (*Assignment, error) {
	n := len(records)
	if n < s.opts.Folds {
		return nil, errors.Newf(errors.CodeSplitTooSmall,
			"cannot split %d records into %d folds", n, s.opts.Folds)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return records[order[a]].Label < records[order[b]].Label
	})

	rng := rand.New(rand.NewSource(s.opts.Seed))
	folds := make([][]int, s.opts.Folds)

	deal := make([]int, s.opts.Folds)
	for i := range deal {
		deal[i] = i
	}
	for start := 0; start < n; start += s.opts.Folds {
		rng.Shuffle(len(deal), func(i, j int) { deal[i], deal[j] = deal[j], deal[i] })
		for offset, f := range deal {
			idx := start + offset
			if idx >= n {
				break
			}
			folds[f] = append(folds[f], order[idx])
		}
	}

	a := &Assignment{Folds: folds, Seed: s.opts.Seed}
	if err := a.validate(n); err != nil {
		return nil, err
	}
	return a, nil
}

// Split returns the train/validation/test index sets for round fold: the
// named fold is the test set, the next fold is validation, and the rest
// train. With ten folds this is the 80/10/10 protocol.
func (a *Assignment) Split(fold int) (FoldSplit, error) {
	k := len(a.Folds)
	if fold < 0 || fold >= k {
		return FoldSplit{}, errors.Newf(errors.CodeSplitConfig, "fold %d out of range [0,%d)", fold, k)
	}

	valFold := (fold + 1) % k
	out := FoldSplit{Fold: fold}
	for f, idxs := range a.Folds {
		switch f {
		case fold:
			out.Test = append(out.Test, idxs...)
		case valFold:
			out.Val = append(out.Val, idxs...)
		default:
			out.Train = append(out.Train, idxs...)
		}
	}
	sort.Ints(out.Train)
	sort.Ints(out.Val)
	sort.Ints(out.Test)
	return out, nil
}

// validate checks the folds form an exact partition of [0,n) and that fold
// sizes differ by at most one.
func (a *Assignment) validate(n int) error {
	seen := make([]bool, n)
	total := 0
	minSize, maxSize := n, 0
	for f, idxs := range a.Folds {
		if len(idxs) < minSize {
			minSize = len(idxs)
		}
		if len(idxs) > maxSize {
			maxSize = len(idxs)
		}
		for _, idx := range idxs {
			if idx < 0 || idx >= n {
				return errors.Newf(errors.CodeSplitIncomplete, "fold %d holds out-of-range index %d", f, idx)
			}
			if seen[idx] {
				return errors.Newf(errors.CodeSplitIncomplete, "index %d assigned to more than one fold", idx)
			}
			seen[idx] = true
			total++
		}
	}
	if total != n {
		return errors.Newf(errors.CodeSplitIncomplete, "assigned %d of %d records", total, n)
	}
	if maxSize-minSize > 1 {
		return errors.Newf(errors.CodeSplitIncomplete,
			"fold sizes range from %d to %d, expected a spread of at most 1", minSize, maxSize)
	}
	return nil
}
