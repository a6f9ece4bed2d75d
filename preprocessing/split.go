package preprocessing

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// NewRand はシードから再現可能な乱数生成器を作る。
// 分割・CV・探索・推定器の乱数は全てこれを通す
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// ShuffleSplitIndices はn個のサンプルを訓練とホールドアウトに分割する
//
// 訓練側はfloor(trainSize*n)件、残りがホールドアウトになる。
// 添字はシード付きの置換順に並ぶ
func ShuffleSplitIndices(n int, trainSize float64, seed uint64) (train, holdout []int, err error) {
	if !(trainSize > 0 && trainSize < 1) {
		return nil, nil, errors.NewValidationError("train_size", "must be in the open interval (0, 1)", trainSize)
	}

	nTrain := int(math.Floor(trainSize * float64(n)))
	nHoldout := n - nTrain
	if nTrain < 1 || nHoldout < 1 {
		return nil, nil, errors.NewValueError("ShuffleSplitIndices",
			"train_size leaves an empty partition for the given number of samples")
	}

	perm := NewRand(seed).Perm(n)
	return perm[:nTrain], perm[nTrain:], nil
}

// TrainValidationSplit はX, yを訓練データと検証データに分割する
func TrainValidationSplit(X, y mat.Matrix, trainSize float64, seed uint64) (XTrain, XVal, yTrain, yVal *mat.Dense, err error) {
	rx, _ := X.Dims()
	ry, _ := y.Dims()
	if rx != ry {
		return nil, nil, nil, nil, errors.NewDimensionError("TrainValidationSplit", rx, ry, 0)
	}

	trainIdx, valIdx, err := ShuffleSplitIndices(rx, trainSize, seed)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return SelectRows(X, trainIdx), SelectRows(X, valIdx), SelectRows(y, trainIdx), SelectRows(y, valIdx), nil
}

// SelectRows は指定した行を指定した順に取り出した新しい行列を返す
func SelectRows(X mat.Matrix, indices []int) *mat.Dense {
	_, c := X.Dims()
	if len(indices) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(indices), c, nil)
	if d, ok := X.(mat.RawRowViewer); ok {
		for i, idx := range indices {
			out.SetRow(i, d.RawRowView(idx))
		}
		return out
	}
	for i, idx := range indices {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}
