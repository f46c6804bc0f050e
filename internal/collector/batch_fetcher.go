package collector

import (
	"context"

	"MarketHeatmap/internal/model"
)

// BatchFetcher is implemented by providers with a true multi-symbol quote
// endpoint. Tickers missing from the result had no usable quote.
type BatchFetcher interface {
	Fetcher
	FetchQuotes(ctx context.Context, tickers []string) (map[string]model.Quote, error)
	MaxBatch() int
}

// chunkTickers splits tickers into consecutive chunks of at most size elements.
func chunkTickers(tickers []string, size int) [][]string {
	if size <= 0 || len(tickers) <= size {
		if len(tickers) == 0 {
			return nil
		}
		return [][]string{tickers}
	}
	var chunks [][]string
	for i := 0; i < len(tickers); i += size {
		end := i + size
		if end > len(tickers) {
			end = len(tickers)
		}
		chunks = append(chunks, tickers[i:end])
	}
	return chunks
}
