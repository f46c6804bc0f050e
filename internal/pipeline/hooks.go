package pipeline

import "MarketHeatmap/internal/model"

// RenderHook is told that the stock-state tree changed.
type RenderHook interface {
	TreeUpdated(generation uint64)
}

// StatusHook is told that the refresh status changed. text is the display text.
type StatusHook interface {
	StatusUpdated(st model.RefreshStatus, text string)
}

// RenderFunc adapts a function to RenderHook.
type RenderFunc func(generation uint64)

func (f RenderFunc) TreeUpdated(generation uint64) { f(generation) }

// StatusFunc adapts a function to StatusHook.
type StatusFunc func(st model.RefreshStatus, text string)

func (f StatusFunc) StatusUpdated(st model.RefreshStatus, text string) { f(st, text) }
