package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// Params はハイパーパラメータ名から値へのマップ
//
// 値はYAML・乱数分布・コードのいずれから来ても良いように、
// 数値はint/int64/float64、その他はstring/boolを受け付ける
type Params map[string]interface{}

// Clone はシャローコピーを返す
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge はpにoverrideを上書きした新しいParamsを返す
func (p Params) Merge(override Params) Params {
	out := p.Clone()
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Keys はキーを辞書順で返す
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String はキー順に並べた表現を返す。ログや結果表のキーに使う
func (p Params) String() string {
	s := "{"
	for i, k := range p.Keys() {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %v", k, p[k])
	}
	return s + "}"
}

// ToFloat は数値または数値文字列をfloat64に変換する
func ToFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, errors.NewValidationError(name, "must be a number", v)
		}
		return f, nil
	default:
		return 0, errors.NewValidationError(name, "must be a number", v)
	}
}

// ToInt は整数値を持つ数値をintに変換する。小数部のあるfloatは拒否する
func ToInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.NewValidationError(name, "must be an integer", v)
		}
		return int(x), nil
	case string:
		i, err := strconv.Atoi(x)
		if err != nil {
			return 0, errors.NewValidationError(name, "must be an integer", v)
		}
		return i, nil
	default:
		return 0, errors.NewValidationError(name, "must be an integer", v)
	}
}

// ToBool はboolまたは "true"/"false" を変換する
func ToBool(name string, v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, errors.NewValidationError(name, "must be a boolean", v)
		}
		return b, nil
	default:
		return false, errors.NewValidationError(name, "must be a boolean", v)
	}
}

// ToString は文字列値を返す
func ToString(name string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(name, "must be a string", v)
	}
	return s, nil
}

// UnknownParam は推定器が受け付けないパラメータ名に対するエラーを返す
func UnknownParam(estimator, name string, v interface{}) error {
	return errors.NewValidationError(name, fmt.Sprintf("unknown parameter for %s", estimator), v)
}
