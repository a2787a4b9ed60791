package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Dataset is the feature matrix and target column of a training table.
type Dataset struct {
	Features []string
	X        [][]float64
	Y        []float64
	// Target names the column Y was read from.
	Target string
	// DroppedRows counts rows skipped because the target was blank.
	DroppedRows int
}

// DatasetOptions selects the feature and target columns of a CSV table.
type DatasetOptions struct {
	Features []string
	Target   string
}

// DefaultDatasetOptions reads the nine model features and range_km.
func DefaultDatasetOptions() *DatasetOptions {
	return &DatasetOptions{
		Features: FeatureNames(),
		Target:   Target,
	}
}

// LoadDataset reads a CSV file with ReadDataset. Errors carry the path.
func LoadDataset(path string, opts *DatasetOptions) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DataError{Path: path, Reason: "cannot open", Err: err}
	}
	defer file.Close()

	dataset, err := ReadDataset(file, opts)
	if err != nil {
		var dataErr *DataError
		if errors.As(err, &dataErr) && dataErr.Path == "" {
			dataErr.Path = path
		}
		return nil, err
	}
	return dataset, nil
}

// ReadDataset parses a CSV table with a header row. Blank and NA feature cells
// become NaN and are left for the imputer.
func ReadDataset(r io.Reader, opts *DatasetOptions) (*Dataset, error) {
	if opts == nil {
		opts = DefaultDatasetOptions()
	}
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &DataError{Reason: "empty file"}
	}
	if err != nil {
		return nil, &DataError{Reason: "malformed header", Err: err}
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	targetIdx, ok := index[opts.Target]
	if !ok {
		return nil, &DataError{Reason: fmt.Sprintf("target '%s' not found", opts.Target)}
	}
	featureIdx := make([]int, len(opts.Features))
	var missing []string
	for i, name := range opts.Features {
		idx, ok := index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		featureIdx[i] = idx
	}
	if len(missing) > 0 {
		return nil, &DataError{Reason: "missing feature columns: " + strings.Join(missing, ", ")}
	}

	dataset := &Dataset{Features: append([]string(nil), opts.Features...), Target: opts.Target}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &DataError{Reason: fmt.Sprintf("malformed record at line %d", line), Err: err}
		}

		target, present, err := parseCell(record[targetIdx])
		if err != nil {
			return nil, &DataError{Reason: fmt.Sprintf("line %d: column %s is not numeric", line, opts.Target), Err: err}
		}
		if !present {
			dataset.DroppedRows++
			continue
		}

		row := make([]float64, len(featureIdx))
		for j, idx := range featureIdx {
			value, present, err := parseCell(record[idx])
			if err != nil {
				return nil, &DataError{Reason: fmt.Sprintf("line %d: column %s is not numeric", line, opts.Features[j]), Err: err}
			}
			if !present {
				value = math.NaN()
			}
			row[j] = value
		}
		dataset.X = append(dataset.X, row)
		dataset.Y = append(dataset.Y, target)
	}

	if len(dataset.X) == 0 {
		return nil, &DataError{Reason: "no usable rows"}
	}
	return dataset, nil
}

func parseCell(raw string) (float64, bool, error) {
	cell := strings.TrimSpace(raw)
	switch strings.ToLower(cell) {
	case "", "na", "nan", "null", "none":
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(value) {
		return 0, false, nil
	}
	return value, true, nil
}

func (d *Dataset) Len() int {
	return len(d.X)
}

// Subset returns the rows at idx. Rows are shared, not copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Features: d.Features,
		Target:   d.Target,
		X:        make([][]float64, len(idx)),
		Y:        make([]float64, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

// TrainTestSplit shuffles row indices with a fixed seed and cuts off the test
// share. The same n, ratio and seed always give the same partition.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	nTest := int(math.Ceil(float64(n)*testRatio - 1e-9))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return indices[nTest:], indices[:nTest]
}

// KFold deals the indices into k folds in order.
func KFold(indices []int, k int) [][]int {
	folds := make([][]int, k)
	for i, idx := range indices {
		folds[i%k] = append(folds[i%k], idx)
	}
	return folds
}
