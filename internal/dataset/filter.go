package dataset

import (
	"github.com/qsarlab/molgraph/internal/chem"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// DropReason classifies why the filter excluded a record.
type DropReason string

const (
	DropInvalidSMILES DropReason = "invalid_smiles"
	DropMultiFragment DropReason = "multi_fragment"
	DropDuplicate     DropReason = "duplicate"
)

// Dropped pairs an excluded record with the reason it was excluded.
type Dropped struct {
	Record Record     `json:"record"`
	Reason DropReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// FilterStats counts the filter's verdicts. Input is always the sum of
// Retained, Invalid, MultiFragment and Duplicates.
type FilterStats struct {
	Input         int `json:"input"`
	Retained      int `json:"retained"`
	Invalid       int `json:"invalid"`
	MultiFragment int `json:"multi_fragment"`
	Duplicates    int `json:"duplicates"`
}

// FilterResult is the outcome of one filter pass.
type FilterResult struct {
	Records []Record    `json:"records"`
	Dropped []Dropped   `json:"dropped,omitempty"`
	Stats   FilterStats `json:"stats"`
}

// Filter validates SMILES with the same parser the graph builder uses and
// removes duplicate structures. A record that survives the filter is
// guaranteed to parse when the graph is built later.
type Filter struct {
	logger logging.Logger
}

func NewFilter(logger logging.Logger) *Filter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Filter{logger: logger}
}

// Apply filters records in order. Duplicates keep the first occurrence;
// later records with the same normalised SMILES are dropped, matching the
// behaviour of the original export pipeline. The input slice is not
// modified.
func (f *Filter) Apply(records []Record) FilterResult {
	res := FilterResult{
		Records: make([]Record, 0, len(records)),
		Stats:   FilterStats{Input: len(records)},
	}
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		canonical, err := chem.Canonicalize(rec.SMILES)
		if err == nil {
			_, err = chem.ParseSMILES(canonical)
		}
		if err != nil {
			reason := DropInvalidSMILES
			if errors.IsCode(err, errors.CodeMultiFragment) {
				reason = DropMultiFragment
				res.Stats.MultiFragment++
			} else {
				res.Stats.Invalid++
			}
			res.Dropped = append(res.Dropped, Dropped{Record: rec, Reason: reason, Detail: err.Error()})
			f.logger.Debug("dropping record",
				logging.String("smiles", rec.SMILES),
				logging.String("reason", string(reason)),
				logging.Int("row", rec.Row),
			)
			continue
		}

		if _, dup := seen[canonical]; dup {
			res.Stats.Duplicates++
			res.Dropped = append(res.Dropped, Dropped{Record: rec, Reason: DropDuplicate})
			continue
		}
		seen[canonical] = struct{}{}

		rec.SMILES = canonical
		res.Records = append(res.Records, rec)
		res.Stats.Retained++
	}

	f.logger.Info("dataset filtered",
		logging.Int("input", res.Stats.Input),
		logging.Int("retained", res.Stats.Retained),
		logging.Int("invalid", res.Stats.Invalid),
		logging.Int("multi_fragment", res.Stats.MultiFragment),
		logging.Int("duplicates", res.Stats.Duplicates),
	)
	return res
}

// ApplyToDataset filters a dataset in place and returns the result.
func (f *Filter) ApplyToDataset(ds *Dataset) FilterResult {
	res := f.Apply(ds.Records)
	ds.Records = res.Records
	return res
}
