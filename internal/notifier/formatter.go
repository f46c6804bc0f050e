package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/tree"
)

// FormatStatus formats the refresh status and index trackers for display.
func FormatStatus(st model.RefreshStatus, text string, indices []model.IndexQuote, marketOpen bool) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>S&amp;P 500 Heatmap</b> | %s\n\n", html.EscapeString(text)))
	for _, idx := range indices {
		b.WriteString(fmt.Sprintf("%s %s: %s\n", changeIcon(idx.ChangePercent), html.EscapeString(idx.Name), idx.Text))
	}
	if len(indices) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("Loaded: %d/%d", st.SuccessCount, st.TotalStocks))
	if st.FailCount > 0 {
		b.WriteString(fmt.Sprintf(" (%d failed)", st.FailCount))
	}
	b.WriteString("\n")
	if st.Synthetic {
		b.WriteString("Source: synthetic data\n")
	}
	market := "closed"
	if marketOpen {
		market = "open"
	}
	b.WriteString(fmt.Sprintf("Market: %s\n", market))
	if !st.LastUpdate.IsZero() {
		b.WriteString(fmt.Sprintf("Updated: %s\n", st.LastUpdate.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatMovers formats the top gainers and losers.
func FormatMovers(gainers, losers []tree.Stock) string {
	if len(gainers) == 0 && len(losers) == 0 {
		return "No stock data loaded yet."
	}
	var b strings.Builder
	writeMovers(&b, "🚀 <b>Top Gainers</b>", gainers)
	b.WriteString("\n")
	writeMovers(&b, "📉 <b>Top Losers</b>", losers)
	return b.String()
}

func writeMovers(b *strings.Builder, title string, stocks []tree.Stock) {
	b.WriteString(title + "\n")
	for i, s := range stocks {
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> %s %+.2f%%\n", i+1, s.Ticker, html.EscapeString(s.Name), s.Change.Float64))
	}
}

// FormatQuote formats a single quote.
func FormatQuote(q model.Quote) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> %.2f (%+.2f, %+.2f%%)\n",
		changeIcon(q.ChangePercent), q.Symbol, q.CurrentPrice, q.Change, q.ChangePercent))
	b.WriteString(fmt.Sprintf("Open %.2f | High %.2f | Low %.2f\n", q.Open, q.High, q.Low))
	b.WriteString(fmt.Sprintf("Prev close %.2f\n", q.PreviousClose))
	if q.High52w.Valid && q.Low52w.Valid {
		b.WriteString(fmt.Sprintf("52w %.2f - %.2f\n", q.Low52w.Float64, q.High52w.Float64))
	}
	if q.Source != "" {
		b.WriteString(fmt.Sprintf("Source: %s\n", q.Source))
	}
	return b.String()
}

// FormatAlert formats a change of data availability.
func FormatAlert(st model.RefreshStatus, text string, now time.Time) string {
	switch {
	case !st.IsLive:
		return fmt.Sprintf("❌ <b>Heatmap data unavailable</b>\n\nAll %d quotes failed at %s", st.TotalStocks, now.Format("15:04"))
	case st.Synthetic:
		return fmt.Sprintf("⚠️ <b>Heatmap on synthetic data</b>\n\nLive source unreachable, status: %s", html.EscapeString(text))
	default:
		return fmt.Sprintf("✅ <b>Heatmap live</b>\n\n%d/%d quotes loaded", st.SuccessCount, st.TotalStocks)
	}
}

func changeIcon(pct float64) string {
	if pct >= 0 {
		return "🟢"
	}
	return "🔴"
}
