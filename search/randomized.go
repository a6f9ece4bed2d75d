package search

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/dgpbench/core/model"
	"github.com/YuminosukeSato/dgpbench/core/parallel"
	"github.com/YuminosukeSato/dgpbench/metrics"
	"github.com/YuminosukeSato/dgpbench/pkg/errors"
	"github.com/YuminosukeSato/dgpbench/pkg/log"
	"github.com/YuminosukeSato/dgpbench/preprocessing"
)

// CVResults mirrors scikit-learn's cv_results_ for the fields this package
// computes. Index i refers to the i-th sampled candidate.
type CVResults struct {
	Params        []model.Params
	SplitScores   [][]float64 // [candidate][fold]
	MeanTestScore []float64
	StdTestScore  []float64
	RankTestScore []int
	MeanFitTime   []float64 // seconds
}

// RandomizedSearchCV evaluates NIter sampled hyperparameter combinations with
// k-fold cross-validation and refits the best one on the whole training set.
type RandomizedSearchCV struct {
	Estimator          model.Estimator
	ParamDistributions ParamGrid
	NIter              int
	NSplits            int
	Scoring            string
	NJobs              int
	RandomState        uint64
	Refit              bool
	Verbose            bool

	// ErrorScore is assigned to a fold whose fit, prediction or scoring
	// failed. NaN removes the candidate from selection.
	ErrorScore float64
	// RaiseOnError makes the first failing fold abort the search.
	RaiseOnError bool

	// FitOptions is forwarded to estimators implementing model.ValidationFitter.
	FitOptions model.FitOptions
	Logger     log.Logger

	BestEstimator model.Estimator
	BestParams    model.Params
	BestScore     float64
	BestIndex     int
	CVResults     *CVResults
}

// NewRandomizedSearchCV creates a search with scikit-learn defaults
// (n_iter=10, 5 folds, neg_mean_squared_error, refit, error_score=nan).
func NewRandomizedSearchCV(estimator model.Estimator, distributions ParamGrid) *RandomizedSearchCV {
	return &RandomizedSearchCV{
		Estimator:          estimator,
		ParamDistributions: distributions,
		NIter:              10,
		NSplits:            5,
		Scoring:            metrics.NegMeanSquaredError,
		NJobs:              1,
		Refit:              true,
		ErrorScore:         math.NaN(),
		BestIndex:          -1,
		BestScore:          math.NaN(),
	}
}

// Fit runs the search without validation data.
func (s *RandomizedSearchCV) Fit(X, y mat.Matrix) error {
	return s.FitWithValidation(X, y, nil, nil)
}

// FitWithValidation runs the search. XVal and yVal, when non-nil, are passed
// to every fit of an estimator implementing model.ValidationFitter; they are
// never used for scoring.
func (s *RandomizedSearchCV) FitWithValidation(X, y, XVal, yVal mat.Matrix) error {
	if s.Estimator == nil {
		return errors.NewValidationError("estimator", "must not be nil", nil)
	}
	scorer, err := metrics.GetScorer(s.Scoring)
	if err != nil {
		return err
	}
	rows, _ := X.Dims()
	if yr, _ := y.Dims(); yr != rows {
		return errors.NewDimensionError("RandomizedSearchCV.Fit", rows, yr, 0)
	}

	logger := s.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("search")
	}

	candidates, err := ParameterSampler{Grid: s.ParamDistributions, NIter: s.NIter, Seed: s.RandomState}.Sample()
	if err != nil {
		return err
	}
	folds, err := NewKFold(s.NSplits, true, s.RandomState).Split(rows)
	if err != nil {
		return err
	}

	// Fold matrices are shared read-only by every candidate.
	type foldData struct{ XTrain, yTrain, XTest, yTest *mat.Dense }
	data := make([]foldData, len(folds))
	for i, f := range folds {
		data[i] = foldData{
			XTrain: preprocessing.SelectRows(X, f.TrainIndices),
			yTrain: preprocessing.SelectRows(y, f.TrainIndices),
			XTest:  preprocessing.SelectRows(X, f.TestIndices),
			yTest:  preprocessing.SelectRows(y, f.TestIndices),
		}
	}

	logger.Info("Starting randomized search",
		log.OperationKey, log.OperationSearch,
		log.ModelNameKey, estimatorName(s.Estimator),
		"search.n_candidates", len(candidates),
		"search.n_splits", len(folds),
		log.WorkersKey, parallel.ResolveJobs(s.NJobs),
		log.SamplesKey, rows)

	nFolds := len(folds)
	scores := make([]float64, len(candidates)*nFolds)
	fitTimes := make([]float64, len(candidates)*nFolds)
	failures := make([]error, len(candidates)*nFolds)

	err = parallel.ForEach(len(scores), s.NJobs, func(task int) error {
		c, f := task/nFolds, task%nFolds
		fd := data[f]

		start := time.Now()
		var score float64
		err := errors.SafeExecute("RandomizedSearchCV.fitCandidate", func() error {
			est, err := s.fitCandidate(candidates[c], fd.XTrain, fd.yTrain, XVal, yVal)
			if err != nil {
				return err
			}
			pred, err := est.Predict(fd.XTest)
			if err != nil {
				return err
			}
			score, err = scorer(fd.yTest, pred)
			return err
		})
		fitTimes[task] = time.Since(start).Seconds()
		if err != nil {
			err = errors.Wrapf(err, "candidate %d %s, fold %d", c, candidates[c], f)
			if s.RaiseOnError {
				return err
			}
			failures[task] = err
			scores[task] = s.ErrorScore
			logger.Warn("CV fold failed",
				log.CandidateKey, c,
				log.FoldKey, f,
				log.ErrAttrKey, err.Error())
			return nil
		}
		scores[task] = score

		if s.Verbose {
			logger.Info("CV fold scored",
				log.CandidateKey, c,
				log.FoldKey, f,
				log.ScoreKey, score,
				log.HyperParamsKey, candidates[c].String())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := checkFailures(failures, s.ErrorScore); err != nil {
		return err
	}

	s.CVResults = buildResults(candidates, scores, fitTimes, nFolds)
	s.BestIndex = bestIndex(s.CVResults.MeanTestScore)
	if s.BestIndex < 0 {
		return errors.NewValueError("RandomizedSearchCV.Fit",
			"no candidate has a finite mean test score; check error_score and the failing folds")
	}
	s.BestParams = candidates[s.BestIndex].Clone()
	s.BestScore = s.CVResults.MeanTestScore[s.BestIndex]

	logger.Info("Randomized search finished",
		log.OperationKey, log.OperationSearch,
		log.CandidateKey, s.BestIndex,
		log.ScoreKey, s.BestScore,
		log.HyperParamsKey, s.BestParams.String())

	if !s.Refit {
		return nil
	}
	best, err := s.fitCandidate(s.BestParams, X, y, XVal, yVal)
	if err != nil {
		return errors.Wrap(err, "refit of best candidate failed")
	}
	s.BestEstimator = best
	return nil
}

// fitCandidate fits a fresh clone of the estimator with params applied.
func (s *RandomizedSearchCV) fitCandidate(params model.Params, X, y, XVal, yVal mat.Matrix) (model.Estimator, error) {
	est := s.Estimator.Clone()
	if err := est.SetParams(params); err != nil {
		return nil, err
	}
	if vf, ok := est.(model.ValidationFitter); ok {
		if err := vf.FitWithValidation(X, y, XVal, yVal, s.FitOptions); err != nil {
			return nil, err
		}
		return est, nil
	}
	if err := est.Fit(X, y); err != nil {
		return nil, err
	}
	return est, nil
}

// Predict uses the refitted best estimator.
func (s *RandomizedSearchCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if s.BestEstimator == nil {
		return nil, errors.NewNotFittedError("RandomizedSearchCV", "Predict")
	}
	return s.BestEstimator.Predict(X)
}

// checkFailures fails when every fit failed and warns when some did.
func checkFailures(failures []error, errorScore float64) error {
	var failed []error
	for _, err := range failures {
		if err != nil {
			failed = append(failed, err)
		}
	}
	switch {
	case len(failed) == 0:
		return nil
	case len(failed) == len(failures):
		return errors.Wrapf(failed[0], "all %d fits failed", len(failures))
	}
	errors.Warn(errors.Newf("%d fits failed out of a total of %d; their score is set to %v",
		len(failed), len(failures), errorScore))
	return nil
}

func buildResults(candidates []model.Params, scores, fitTimes []float64, nFolds int) *CVResults {
	n := len(candidates)
	r := &CVResults{
		Params:        candidates,
		SplitScores:   make([][]float64, n),
		MeanTestScore: make([]float64, n),
		StdTestScore:  make([]float64, n),
		RankTestScore: make([]int, n),
		MeanFitTime:   make([]float64, n),
	}
	for c := 0; c < n; c++ {
		split := scores[c*nFolds : (c+1)*nFolds]
		r.SplitScores[c] = append([]float64(nil), split...)
		mean, std := stat.PopMeanStdDev(split, nil)
		r.MeanTestScore[c] = mean
		r.StdTestScore[c] = std
		r.MeanFitTime[c] = stat.Mean(fitTimes[c*nFolds:(c+1)*nFolds], nil)
	}

	// rank 1 is best; ties share the lowest rank ("min" method)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// NaN ranks after every finite score
	key := func(c int) float64 {
		if math.IsNaN(r.MeanTestScore[c]) {
			return math.Inf(-1)
		}
		return r.MeanTestScore[c]
	}
	sort.SliceStable(order, func(a, b int) bool {
		return key(order[a]) > key(order[b])
	})
	for pos, c := range order {
		if pos > 0 && key(c) == key(order[pos-1]) {
			r.RankTestScore[c] = r.RankTestScore[order[pos-1]]
			continue
		}
		r.RankTestScore[c] = pos + 1
	}
	return r
}

// bestIndex returns the first index holding the maximum mean score, or -1
// when no mean is a number.
func bestIndex(means []float64) int {
	best := -1
	for i, m := range means {
		if math.IsNaN(m) {
			continue
		}
		if best < 0 || m > means[best] {
			best = i
		}
	}
	return best
}

func estimatorName(e model.Estimator) string {
	if s, ok := e.(interface{ String() string }); ok {
		return s.String()
	}
	return "estimator"
}
