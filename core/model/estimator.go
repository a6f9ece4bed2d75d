package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は (n, 1) の列ベクトル
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を (n, 1) 行列で返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer はスコアを計算できるモデルのインターフェース
type Scorer interface {
	// Score は決定係数 R² を返す
	Score(X, y mat.Matrix) (float64, error)
}

// ParameterGetter はハイパーパラメータを公開するモデルのインターフェース
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter はハイパーパラメータの変更を受け付けるモデルのインターフェース
type ParameterSetter interface {
	// SetParams は未知のキーや型の合わない値に対してエラーを返す
	SetParams(params map[string]interface{}) error
}

// Estimator は探索・学習ループが扱う推定器の最小集合
//
// Clone は同じハイパーパラメータを持つ未学習のインスタンスを返す。
// 交差検証の各foldや最終refitは必ずCloneしたインスタンスで学習する
type Estimator interface {
	Fitter
	Predictor
	ParameterGetter
	ParameterSetter
	Clone() Estimator
	IsFitted() bool
}

// Regressor は回帰モデルのインターフェース
type Regressor interface {
	Estimator
	Scorer
}

// ValidationFitter は検証データを使って学習を制御できる推定器のインターフェース
//
// エポック毎に検証損失を計算し、opts.Callbacks に渡す。
// 探索器はこのインターフェースを実装する推定器に対してのみ検証データを渡す
type ValidationFitter interface {
	FitWithValidation(X, y, XVal, yVal mat.Matrix, opts FitOptions) error
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
