package artifact

import (
	"bufio"
	"os"

	pickle "github.com/kisielk/og-rek"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// PickleProtocol is readable by both Python 2 and Python 3.
const PickleProtocol = 2

// WriteParamsPickle writes params as a Python dict to path.
func WriteParamsPickle(path string, params model.Params) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", path)
		}
	}()

	bw := bufio.NewWriter(f)
	enc := pickle.NewEncoderWithConfig(bw, &pickle.EncoderConfig{Protocol: PickleProtocol})
	if err := enc.Encode(pythonDict(params)); err != nil {
		return errors.Wrapf(err, "pickling params to %s", path)
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// pythonDict converts params into values the pickler maps onto Python
// builtins.
func pythonDict(params model.Params) map[interface{}]interface{} {
	out := make(map[interface{}]interface{}, len(params))
	for k, v := range params {
		out[k] = pythonValue(v)
	}
	return out
}

func pythonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []int:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = int64(e)
		}
		return out
	case []float64:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
