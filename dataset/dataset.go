// Package dataset discovers DGP directories and loads their train/test CSV
// pairs.
//
// Every CSV carries the composite index columns Var1 and Var2, one target
// column and any number of feature columns. Index values are kept verbatim as
// strings so predictions can be written back under the same row identity.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// Index column names.
const (
	Var1 = "Var1"
	Var2 = "Var2"
)

// TestSuffix is appended to the dataset name for the test file.
const TestSuffix = "_test"

// Key is the composite row index.
type Key struct {
	Var1, Var2 string
}

// Table is one loaded CSV file.
type Table struct {
	Path     string
	Index    []Key
	Features []string
	// X is (rows, len(Features)); Y is (rows, 1).
	X, Y *mat.Dense
}

// Rows returns the number of data rows.
func (t *Table) Rows() int { return len(t.Index) }

// Dataset is a train/test pair of one DGP directory.
type Dataset struct {
	DGP   string
	Name  string
	Train *Table
	Test  *Table
}

// Discover returns the DGP directory names under root in sorted order.
// Files and hidden entries are ignored.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading inputs directory %s", root)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	sort.Strings(dirs)
	return dirs, nil
}

// TrainPath returns <root>/<dgp>/<name>.csv.
func TrainPath(root, dgp, name string) string {
	return filepath.Join(root, dgp, name+".csv")
}

// TestPath returns <root>/<dgp>/<name>_test.csv.
func TestPath(root, dgp, name string) string {
	return filepath.Join(root, dgp, name+TestSuffix+".csv")
}

// Load reads the train and test files of one unit and checks that both
// share the same feature columns in the same order.
func Load(root, dgp, name, target string) (*Dataset, error) {
	train, err := LoadCSV(TrainPath(root, dgp, name), target)
	if err != nil {
		return nil, err
	}
	test, err := LoadCSV(TestPath(root, dgp, name), target)
	if err != nil {
		return nil, err
	}
	if err := CheckSchema(train, test); err != nil {
		return nil, err
	}
	return &Dataset{DGP: dgp, Name: name, Train: train, Test: test}, nil
}

// CheckSchema fails when test does not have exactly the feature columns of
// train.
func CheckSchema(train, test *Table) error {
	if len(train.Features) != len(test.Features) {
		return errors.NewSchemaError(test.Path, fmt.Sprintf(
			"feature columns %v do not match training columns %v", test.Features, train.Features))
	}
	for i := range train.Features {
		if train.Features[i] != test.Features[i] {
			return errors.NewSchemaError(test.Path, fmt.Sprintf(
				"feature column %d is %q, training has %q", i, test.Features[i], train.Features[i]))
		}
	}
	return nil
}

// LoadCSV reads a CSV file with a header row.
func LoadCSV(path, target string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	t, err := ReadCSV(f, target)
	if err != nil {
		return nil, relabel(err, path)
	}
	t.Path = path
	return t, nil
}

// ReadCSV parses CSV data from r. Errors carry no path; LoadCSV adds it.
func ReadCSV(r io.Reader, target string) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewSchemaError("", "empty file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading CSV header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := cols[h]; dup {
			return nil, errors.NewSchemaError("", fmt.Sprintf("duplicate column %q", h))
		}
		cols[h] = i
	}
	var missing []string
	for _, c := range []string{Var1, Var2, target} {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingColumnsError("", missing...)
	}

	var featureIdx []int
	var features []string
	for i, h := range header {
		if h == Var1 || h == Var2 || h == target {
			continue
		}
		featureIdx = append(featureIdx, i)
		features = append(features, h)
	}
	if len(features) == 0 {
		return nil, errors.NewSchemaError("", "no feature columns")
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading CSV rows")
	}
	if len(records) == 0 {
		return nil, errors.NewValueError("dataset.ReadCSV", "no data rows")
	}

	n := len(records)
	t := &Table{
		Index:    make([]Key, n),
		Features: features,
		X:        mat.NewDense(n, len(features), nil),
		Y:        mat.NewDense(n, 1, nil),
	}

	targetIdx := cols[target]
	for i, rec := range records {
		t.Index[i] = Key{Var1: rec[cols[Var1]], Var2: rec[cols[Var2]]}
		v, err := parseFloat(rec[targetIdx])
		if err != nil {
			return nil, cellError(i, target, rec[targetIdx])
		}
		t.Y.Set(i, 0, v)
		for j, c := range featureIdx {
			v, err := parseFloat(rec[c])
			if err != nil {
				return nil, cellError(i, header[c], rec[c])
			}
			t.X.Set(i, j, v)
		}
	}
	return t, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func cellError(row int, column, value string) error {
	// row is 0-based over data rows; +2 gives the file line
	return errors.NewValueError("dataset.ReadCSV",
		fmt.Sprintf("line %d column %q: %q is not a number", row+2, column, value))
}

// relabel fills in the path of schema errors raised by ReadCSV.
func relabel(err error, path string) error {
	var se *errors.SchemaError
	if errors.As(err, &se) && se.Path == "" {
		se.Path = path
		return err
	}
	return errors.Wrapf(err, "loading %s", path)
}
