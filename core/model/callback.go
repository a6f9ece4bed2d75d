package model

// CallbackEnv はエポック終了時にコールバックへ渡される学習状態
type CallbackEnv struct {
	Model         string
	Epoch         int
	Loss          float64
	ValLoss       float64
	HasValidation bool

	// StopTraining をtrueにすると学習は現在のエポックで終了する
	StopTraining bool

	// BestEpoch はコールバックが最良と判断したエポック（-1は未設定）。
	// 推定器はこの値を見て最良エポックの重みを保存する
	BestEpoch int

	// RestoreBest がtrueのとき、推定器は学習終了時にBestEpochの重みを復元する
	RestoreBest bool
}

// Callback はエポック毎に呼ばれる関数。エラーを返すと学習は中断される
type Callback func(env *CallbackEnv) error

// CallbackFactory は状態を持つコールバックを学習毎に新しく作る。
// 交差検証のfoldは並列に学習されるため、同じインスタンスを共有してはならない
type CallbackFactory func() Callback

// FitOptions はValidationFitterへ渡す学習設定
type FitOptions struct {
	// Epochs が0以下のとき推定器の既定値を使う
	Epochs    int
	Callbacks []CallbackFactory
}

// Instantiate はファクトリから今回の学習用コールバックを作る
func (o FitOptions) Instantiate() []Callback {
	cbs := make([]Callback, 0, len(o.Callbacks))
	for _, f := range o.Callbacks {
		if f != nil {
			cbs = append(cbs, f())
		}
	}
	return cbs
}

// RunCallbacks は全てのコールバックを順に実行する
func RunCallbacks(cbs []Callback, env *CallbackEnv) error {
	for _, cb := range cbs {
		if err := cb(env); err != nil {
			return err
		}
	}
	return nil
}
