package wrappers

import (
	"sort"
	"strings"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

var registry = map[string]Factory{
	LinearRegTag:     NewLinearReg,
	RandomForestTag:  NewRandomForest,
	LGBRegressionTag: NewLGBRegression,
	FFNNTag:          NewFFNN,
}

// Lookup returns the factory registered for tag.
func Lookup(tag string) (Factory, error) {
	f, ok := registry[tag]
	if !ok {
		return nil, errors.NewValidationError("model_tag", "must be one of "+strings.Join(Tags(), ", "), tag)
	}
	return f, nil
}

// Tags lists the registered model tags in sorted order.
func Tags() []string {
	tags := make([]string, 0, len(registry))
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
