// Package dataset reads the worker's local training partition.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrEmpty is returned for a file without rows.
var ErrEmpty = errors.New("dataset is empty")

// Dataset is a dense feature matrix with one label per row.
type Dataset struct {
	Path     string
	Labels   []float64
	Features [][]float64
}

// Rows returns the number of examples.
func (d *Dataset) Rows() int {
	return len(d.Labels)
}

// NumFeatures returns the width of the feature matrix.
func (d *Dataset) NumFeatures() int {
	if len(d.Features) == 0 {
		return 0
	}
	return len(d.Features[0])
}

// Load reads a headerless comma separated file whose first column is the
// label and whose remaining columns are features.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	ds.Path = path
	return ds, nil
}

// Read parses CSV rows from r.
func Read(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	ds := &Dataset{}
	width := -1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)

		if width == -1 {
			width = len(record)
			if width < 2 {
				return nil, fmt.Errorf("line %d: need a label and at least one feature", line)
			}
		}
		// csv.Reader already rejects ragged rows via FieldsPerRecord.

		values := make([]float64, len(record))
		for i, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			values[i] = v
		}
		ds.Labels = append(ds.Labels, values[0])
		ds.Features = append(ds.Features, values[1:])
	}

	if ds.Rows() == 0 {
		return nil, ErrEmpty
	}
	return ds, nil
}
