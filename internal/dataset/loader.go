package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// LoaderOptions selects the columns to read and the metadata to stamp on
// every record. Column matching is case-insensitive.
type LoaderOptions struct {
	SMILESColumn string
	LabelColumn  string
	Source       Source
	Property     Property
}

// DefaultLoaderOptions reads the column layout produced by the ChEMBL export
// scripts.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		SMILESColumn: "smiles",
		LabelColumn:  "label",
		Source:       SourceChEMBL,
		Property:     PropertyLipophilicity,
	}
}

// LoadStats counts what happened to each input row during loading. Rows
// dropped here never reach the filter stage.
type LoadStats struct {
	Rows          int `json:"rows"`
	Loaded        int `json:"loaded"`
	MissingSMILES int `json:"missing_smiles"`
	BadLabel      int `json:"bad_label"`
}

// Loader reads CSV datasets into memory.
type Loader struct {
	opts   LoaderOptions
	logger logging.Logger
}

func NewLoader(opts LoaderOptions, logger logging.Logger) *Loader {
	if opts.SMILESColumn == "" {
		opts.SMILESColumn = "smiles"
	}
	if opts.LabelColumn == "" {
		opts.LabelColumn = "label"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loader{opts: opts, logger: logger}
}

// LoadFile opens path and delegates to Load. The dataset name is the file
// path as given.
func (l *Loader) LoadFile(path string) (*Dataset, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, errors.Wrap(err, errors.CodeDatasetRead, "open dataset file")
	}
	defer f.Close()

	ds, stats, err := l.Load(f, path)
	if err != nil {
		return nil, stats, err
	}
	return ds, stats, nil
}

// Load reads a headed CSV stream. Rows with a blank SMILES cell or an
// unparseable label are dropped and counted rather than failing the load;
// a malformed CSV or a missing required column fails the whole load.
func (l *Loader) Load(r io.Reader, name string) (*Dataset, LoadStats, error) {
	var stats LoadStats

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, stats, errors.New(errors.CodeDatasetEmpty, "dataset has no header row")
	}
	if err != nil {
		return nil, stats, errors.Wrap(err, errors.CodeDatasetFormat, "read dataset header")
	}

	smilesIdx, labelIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case strings.ToLower(l.opts.SMILESColumn):
			smilesIdx = i
		case strings.ToLower(l.opts.LabelColumn):
			labelIdx = i
		}
	}
	if smilesIdx < 0 {
		return nil, stats, errors.Newf(errors.CodeDatasetFormat, "dataset is missing column %q", l.opts.SMILESColumn)
	}
	if labelIdx < 0 {
		return nil, stats, errors.Newf(errors.CodeDatasetFormat, "dataset is missing column %q", l.opts.LabelColumn)
	}

	ds := &Dataset{
		Name:     name,
		Property: l.opts.Property,
		Source:   l.opts.Source,
	}

	row := 1 // header
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, stats, errors.Wrapf(err, errors.CodeDatasetFormat, "read dataset row %d", row)
		}
		stats.Rows++

		smiles := strings.TrimSpace(fields[smilesIdx])
		if smiles == "" {
			stats.MissingSMILES++
			continue
		}
		label, err := strconv.ParseFloat(strings.TrimSpace(fields[labelIdx]), 64)
		if err != nil {
			stats.BadLabel++
			l.logger.Debug("dropping row with unparseable label",
				logging.Int("row", row),
				logging.String("value", fields[labelIdx]),
			)
			continue
		}

		ds.Records = append(ds.Records, NewRecord(smiles, label, l.opts.Source, row))
		stats.Loaded++
	}

	if stats.Loaded == 0 {
		return nil, stats, errors.Newf(errors.CodeDatasetEmpty, "dataset %q has no usable rows", name)
	}

	l.logger.Info("dataset loaded",
		logging.String("name", name),
		logging.Int("rows", stats.Rows),
		logging.Int("loaded", stats.Loaded),
		logging.Int("missing_smiles", stats.MissingSMILES),
		logging.Int("bad_label", stats.BadLabel),
	)
	return ds, stats, nil
}
