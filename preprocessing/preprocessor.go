package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/pkg/log"
)

// SplitData は1ユニット分の学習・検証・テストデータ
type SplitData struct {
	XTrain, XValidation, XTest *mat.Dense
	YTrain, YValidation, YTest *mat.Dense

	// Scaler は標準化しない場合nil
	Scaler *StandardScaler
}

// Preprocessor は生の訓練/テスト行列からSplitDataを作る
//
// 訓練データは常にTrainSizeで訓練と検証に分割される。
// Standardizeが有効なとき、訓練部分だけでStandardScalerを学習し、
// 同じ変換を検証・テストに適用する。目的変数はスケーリングしない
type Preprocessor struct {
	TrainSize   float64
	Standardize bool
	Seed        uint64

	Logger log.Logger
}

// NewPreprocessor は新しいPreprocessorを作成する
func NewPreprocessor(trainSize float64, standardize bool, seed uint64) *Preprocessor {
	return &Preprocessor{
		TrainSize:   trainSize,
		Standardize: standardize,
		Seed:        seed,
		Logger:      log.GetLoggerWithName("preprocessing"),
	}
}

// Process はXTrain/yTrainを分割し、必要なら標準化してSplitDataを返す
func (p *Preprocessor) Process(XTrain, yTrain, XTest, yTest mat.Matrix) (*SplitData, error) {
	rTrain, cTrain := XTrain.Dims()
	rTest, cTest := XTest.Dims()
	if rTrain < 2 {
		return nil, errors.NewValueError("Preprocessor.Process", "at least 2 training rows are required")
	}
	if cTrain != cTest {
		return nil, errors.NewDimensionError("Preprocessor.Process", cTrain, cTest, 1)
	}
	if ry, _ := yTest.Dims(); ry != rTest {
		return nil, errors.NewDimensionError("Preprocessor.Process", rTest, ry, 0)
	}

	xTr, xVal, yTr, yVal, err := TrainValidationSplit(XTrain, yTrain, p.TrainSize, p.Seed)
	if err != nil {
		return nil, err
	}

	data := &SplitData{
		XTrain:      xTr,
		XValidation: xVal,
		XTest:       mat.DenseCopyOf(XTest),
		YTrain:      yTr,
		YValidation: yVal,
		YTest:       mat.DenseCopyOf(yTest),
	}

	if p.Standardize {
		scaler := NewStandardScalerDefault()
		if err := scaler.Fit(data.XTrain); err != nil {
			return nil, err
		}
		if data.XTrain, err = transformDense(scaler, data.XTrain); err != nil {
			return nil, err
		}
		if data.XValidation, err = transformDense(scaler, data.XValidation); err != nil {
			return nil, err
		}
		if data.XTest, err = transformDense(scaler, data.XTest); err != nil {
			return nil, err
		}
		data.Scaler = scaler
	}

	if p.Logger != nil {
		p.Logger.Debug("Split prepared",
			log.OperationKey, log.OperationFitTransform,
			log.SamplesKey, rTrain,
			log.FeaturesKey, cTrain,
			"train_rows", data.XTrain.RawMatrix().Rows,
			"validation_rows", data.XValidation.RawMatrix().Rows,
			"test_rows", rTest,
			"standardized", p.Standardize,
		)
	}
	return data, nil
}

func transformDense(s *StandardScaler, X *mat.Dense) (*mat.Dense, error) {
	out, err := s.Transform(X)
	if err != nil {
		return nil, err
	}
	return out.(*mat.Dense), nil
}
