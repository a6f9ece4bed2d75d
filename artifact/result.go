package artifact

import (
	"encoding/csv"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/dataset"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// ResultHeader is the header row of the result CSV.
var ResultHeader = []string{dataset.Var1, dataset.Var2, "y", "pred"}

// Row is one test observation with its prediction.
type Row struct {
	Var1, Var2 string
	Y, Pred    float64
}

// BuildRows pairs the test index with the true and predicted targets, in
// test-row order. y and pred must be (n, 1).
func BuildRows(index []dataset.Key, y, pred mat.Matrix) ([]Row, error) {
	n := len(index)
	if r, _ := y.Dims(); r != n {
		return nil, errors.NewDimensionError("artifact.BuildRows", n, r, 0)
	}
	if r, _ := pred.Dims(); r != n {
		return nil, errors.NewDimensionError("artifact.BuildRows", n, r, 0)
	}
	rows := make([]Row, n)
	for i, k := range index {
		rows[i] = Row{Var1: k.Var1, Var2: k.Var2, Y: y.At(i, 0), Pred: pred.At(i, 0)}
	}
	return rows, nil
}

// WriteResultCSV writes rows to path, replacing any existing file.
func WriteResultCSV(path string, rows []Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", path)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(ResultHeader); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	for _, r := range rows {
		rec := []string{r.Var1, r.Var2, formatFloat(r.Y), formatFloat(r.Pred)}
		if err := w.Write(rec); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// formatFloat uses the shortest representation that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
