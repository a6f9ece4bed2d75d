// Package ensemble provides tree ensembles for regression: a bagged
// RandomForestRegressor and a LightGBM-style GradientBoostingRegressor.
//
// Both grow their trees with package tree. The forest averages CART trees
// fitted on bootstrap samples; the booster fits leaf-wise trees to the
// gradients of an objective (L2 or Huber) with L1/L2 leaf regularisation,
// row bagging and column subsampling.
package ensemble
