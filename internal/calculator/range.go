package calculator

import (
	"errors"
	"math"

	"MarketHeatmap/internal/model"
)

// TradingDaysPerYear is the number of daily points scanned for the 52-week range.
const TradingDaysPerYear = 252

// Calculate52WeekRange scans the most recent 252 points and returns the high and low.
func Calculate52WeekRange(series model.ChartSeries) (high, low float64, err error) {
	return RangeOver(series, TradingDaysPerYear)
}

// RangeOver scans the most recent n points and returns the high and low.
// Points without a high or low use their price.
func RangeOver(series model.ChartSeries, n int) (high, low float64, err error) {
	if len(series) == 0 {
		return 0, 0, errors.New("no chart points provided")
	}
	start := len(series) - n
	if start < 0 || n <= 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, p := range series[start:] {
		h, l := p.High, p.Low
		if h <= 0 {
			h = p.Price
		}
		if l <= 0 {
			l = p.Price
		}
		if h > high {
			high = h
		}
		if l < low {
			low = l
		}
	}
	return high, low, nil
}

// Calculate52WeekPosition returns where the current price sits within the 52-week range (0.0~1.0).
func Calculate52WeekPosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
