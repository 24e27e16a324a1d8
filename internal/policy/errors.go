package policy

import (
	"scqc/internal/errors"
)

var (
	errEmptyMetrics = errors.EmptyMatrix("no cells to evaluate")
	errMisaligned   = errors.InvalidConfiguration("metric vectors are not aligned to cells")
	errNoSeed       = errors.InvalidConfiguration("outlier policy requires a seed")
)
