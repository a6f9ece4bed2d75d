// Package linear は最小二乗法による線形回帰を提供する
package linear

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/core/parallel"
	"github.com/YuminosukeSato/dgpbench/metrics"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

// LinearRegression は線形回帰モデル
//
// fit_intercept=trueのときはXとyを中心化してから最小二乗問題を解き、
// 切片を mean(y) - mean(X)·w で復元する。ランク落ちの場合はSVDによる
// 最小ノルム解を返す
type LinearRegression struct {
	model.BaseEstimator

	FitIntercept bool
	Rcond        float64

	Weights   *mat.VecDense // 重み（係数）
	Intercept float64       // 切片
	NFeatures int           // 特徴量の数
	Rank      int           // 計画行列のランク
}

// NewLinearRegression は新しい線形回帰モデルを作成する
//
//	lr := linear.NewLinearRegression(linear.WithFitIntercept(false))
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		FitIntercept: true,
		Rcond:        1e-12,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}

	lr.Reset()
	lr.NFeatures = c

	XWork := mat.DenseCopyOf(X)
	yWork := mat.NewVecDense(r, mat.Col(nil, 0, y))

	xMean := make([]float64, c)
	var yMean float64
	if lr.FitIntercept {
		for j := 0; j < c; j++ {
			for i := 0; i < r; i++ {
				xMean[j] += XWork.At(i, j)
			}
			xMean[j] /= float64(r)
		}
		for i := 0; i < r; i++ {
			yMean += yWork.AtVec(i)
		}
		yMean /= float64(r)

		// 並列処理の閾値（この値以下の行数では逐次処理を使用）
		const parallelThreshold = 1000
		parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
			for i := start; i < end; i++ {
				for j := 0; j < c; j++ {
					XWork.Set(i, j, XWork.At(i, j)-xMean[j])
				}
				yWork.SetVec(i, yWork.AtVec(i)-yMean)
			}
		})
	}

	var svd mat.SVD
	if ok := svd.Factorize(XWork, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD factorization failed", errors.ErrSingularMatrix)
	}
	values := svd.Values(nil)
	rank := 0
	for _, s := range values {
		if s > lr.Rcond*values[0] {
			rank++
		}
	}
	if rank == 0 {
		// 全ての特徴量が定数。係数0、切片は平均
		lr.Weights = mat.NewVecDense(c, nil)
	} else {
		var w mat.Dense
		svd.SolveTo(&w, yWork, rank)
		lr.Weights = mat.NewVecDense(c, mat.Col(nil, 0, &w))
	}
	lr.Rank = rank

	lr.Intercept = 0
	if lr.FitIntercept {
		lr.Intercept = yMean - mat.Dot(mat.NewVecDense(c, xMean), lr.Weights)
	}

	lr.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}

	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}

	// 予測: y = X * weights + intercept
	predictions := mat.NewVecDense(r, nil)
	predictions.MulVec(X, lr.Weights)
	for i := 0; i < r; i++ {
		predictions.SetVec(i, predictions.AtVec(i)+lr.Intercept)
	}
	return predictions, nil
}

// GetWeights は学習された重み（係数）を返す
func (lr *LinearRegression) GetWeights() []float64 {
	if lr.Weights == nil {
		return nil
	}
	return mat.Col(nil, 0, lr.Weights)
}

// GetIntercept は学習された切片を返す
func (lr *LinearRegression) GetIntercept() float64 {
	if !lr.IsFitted() {
		return 0
	}
	return lr.Intercept
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, yPred)
}

// GetParams はハイパーパラメータを返す
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.FitIntercept,
	}
}

// SetParams はハイパーパラメータを設定する。不正な値があれば何も変更しない
func (lr *LinearRegression) SetParams(params map[string]interface{}) error {
	if err := NewLinearRegression().applyParams(params); err != nil {
		return err
	}
	return lr.applyParams(params)
}

func (lr *LinearRegression) applyParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "fit_intercept":
			b, err := model.ToBool(k, v)
			if err != nil {
				return err
			}
			lr.FitIntercept = b
		default:
			return model.UnknownParam("LinearRegression", k, v)
		}
	}
	return nil
}

// Clone は同じハイパーパラメータを持つ未学習のモデルを返す
func (lr *LinearRegression) Clone() model.Estimator {
	return NewLinearRegression(WithFitIntercept(lr.FitIntercept), WithRcond(lr.Rcond))
}

// String はモデルの文字列表現を返す
func (lr *LinearRegression) String() string {
	return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.FitIntercept)
}

type linearSnapshot struct {
	FitIntercept bool
	Rcond        float64
	Weights      []float64
	Intercept    float64
	NFeatures    int
	Rank         int
	Fitted       bool
}

// GobEncode は学習済み状態を含めてエンコードする
func (lr *LinearRegression) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(linearSnapshot{
		FitIntercept: lr.FitIntercept,
		Rcond:        lr.Rcond,
		Weights:      lr.GetWeights(),
		Intercept:    lr.Intercept,
		NFeatures:    lr.NFeatures,
		Rank:         lr.Rank,
		Fitted:       lr.IsFitted(),
	})
	return buf.Bytes(), err
}

// GobDecode はGobEncodeの出力から状態を復元する
func (lr *LinearRegression) GobDecode(data []byte) error {
	var s linearSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "failed to decode LinearRegression")
	}
	*lr = LinearRegression{
		FitIntercept: s.FitIntercept,
		Rcond:        s.Rcond,
		Intercept:    s.Intercept,
		NFeatures:    s.NFeatures,
		Rank:         s.Rank,
	}
	if len(s.Weights) > 0 {
		lr.Weights = mat.NewVecDense(len(s.Weights), s.Weights)
	}
	if s.Fitted {
		lr.SetFitted()
	}
	return nil
}
