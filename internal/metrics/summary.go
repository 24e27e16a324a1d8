package metrics

import (
	"math"

	"github.com/montanaflynn/stats"

	"scqc/internal/errors"
)

// Summary describes the distribution of one metric across cells or genes
type Summary struct {
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Q25      float64 `json:"q25"`
	Median   float64 `json:"median"`
	Q75      float64 `json:"q75"`
	Max      float64 `json:"max"`
	MAD      float64 `json:"mad"`
	Skewness float64 `json:"skewness"`
	// Values outside the 1.5×IQR fences
	IQROutliers int `json:"iqr_outliers"`
}

// MADScale converts a raw median absolute deviation into a consistent
// estimate of the standard deviation under normality
const MADScale = 1.4826

// Summarize computes a distribution summary of values. Non-finite values are
// ignored; an input with no finite values is an error.
func Summarize(values []float64) (Summary, error) {
	data := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return Summary{}, errors.EmptyMatrix("no finite values to summarize")
	}

	s := Summary{N: len(data)}
	var err error
	if s.Mean, err = stats.Mean(data); err != nil {
		return Summary{}, errors.Wrap(err, "mean")
	}
	if s.StdDev, err = stats.StandardDeviation(data); err != nil {
		return Summary{}, errors.Wrap(err, "standard deviation")
	}
	if s.Min, err = stats.Min(data); err != nil {
		return Summary{}, errors.Wrap(err, "min")
	}
	if s.Max, err = stats.Max(data); err != nil {
		return Summary{}, errors.Wrap(err, "max")
	}
	if s.Median, err = stats.Median(data); err != nil {
		return Summary{}, errors.Wrap(err, "median")
	}
	mad, err := stats.MedianAbsoluteDeviation(data)
	if err != nil {
		return Summary{}, errors.Wrap(err, "mad")
	}
	s.MAD = mad * MADScale

	s.Q25, s.Q75 = s.Median, s.Median
	if len(data) >= 4 {
		if s.Q25, err = stats.Percentile(data, 25); err != nil {
			return Summary{}, errors.Wrap(err, "q25")
		}
		if s.Q75, err = stats.Percentile(data, 75); err != nil {
			return Summary{}, errors.Wrap(err, "q75")
		}
	}

	s.Skewness = skewness(data, s.Mean, s.StdDev)
	s.IQROutliers = countIQROutliers(data, s.Q25, s.Q75)
	return s, nil
}

// skewness is the adjusted Fisher-Pearson coefficient
func skewness(data []float64, mean, sd float64) float64 {
	if len(data) < 3 || sd == 0 {
		return 0
	}
	n := float64(len(data))
	var cubed float64
	for _, x := range data {
		d := (x - mean) / sd
		cubed += d * d * d
	}
	return cubed / n * math.Sqrt(n*(n-1)) / (n - 2)
}

func countIQROutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lo, hi := q25-1.5*iqr, q75+1.5*iqr
	n := 0
	for _, x := range data {
		if x < lo || x > hi {
			n++
		}
	}
	return n
}
