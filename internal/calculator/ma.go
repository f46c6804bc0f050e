package calculator

import (
	"errors"

	"MarketHeatmap/internal/model"
)

// CalculateSMA computes the simple moving average of the given values over the specified period.
func CalculateSMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// MovingAverage returns the simple moving average of closing prices over the last period points.
func MovingAverage(series model.ChartSeries, period int) (float64, error) {
	return CalculateSMA(extractCloses(series), period)
}

// AverageVolume returns the mean volume over the last days points, or over
// the whole series when it is shorter.
func AverageVolume(series model.ChartSeries, days int) (float64, error) {
	if len(series) == 0 {
		return 0, errors.New("no chart points provided")
	}
	if days <= 0 || days > len(series) {
		days = len(series)
	}
	volumes := make([]float64, len(series))
	for i, p := range series {
		volumes[i] = p.Volume
	}
	return CalculateSMA(volumes, days)
}

func extractCloses(series model.ChartSeries) []float64 {
	closes := make([]float64, len(series))
	for i, p := range series {
		closes[i] = p.Close
		if closes[i] == 0 {
			closes[i] = p.Price
		}
	}
	return closes
}
