// Package dgpbench trains regression models on synthetic data generating
// process (DGP) datasets and records their out-of-sample predictions.
//
// The inputs root holds one directory per DGP. Each directory contains, for
// every configured dataset name, a training file <name>.csv and a test file
// <name>_test.csv with the index columns Var1 and Var2, the feature columns
// and the target column (betas_dgp by default).
//
// For one model tag the trainer visits every (DGP, dataset) unit, splits the
// training file into training and validation parts, optionally standardizes
// the features, then either fits the model directly or runs a randomized
// hyperparameter search with k-fold cross-validation. Predictions on the test
// file and the tuned parameters are written under
//
//	<outputs>/<model tag>/<dgp>/<name>_result.csv
//	<outputs>/<model tag>/<dgp>/<name>_model.pickle
//
// # Models
//
//   - linear_reg: ordinary least squares, fitted directly
//   - random_forest: random forest regressor, randomized search
//   - lgb_regression: gradient boosted trees, randomized search
//   - ffnn: feed-forward network with early stopping, randomized search
//
// # Quick Start
//
//	go run ./cmd/dgptrain -inputs data/inputs -outputs data/outputs -model random_forest
//
// Settings can also come from a YAML file (-config), a .env file and DGP_*
// environment variables. See package config.
//
// # Packages
//
//   - training: the run orchestrator
//   - search: parameter distributions, k-fold CV and randomized search
//   - wrappers: model tags, their estimators and search grids
//   - dataset, preprocessing, artifact: input, splitting and output files
//   - ledger, telemetry: run history in bbolt and Prometheus textfile metrics
//   - linear, tree, ensemble, neural: the estimators
package dgpbench
