package sources

import (
	"log/slog"

	"NewsDesk/internal/config"
	"NewsDesk/internal/infrastructure/marketdata"
	"NewsDesk/internal/ports"
)

// Build constructs sources from configuration. Unknown kinds and finnhub
// sources without a configured client are logged and skipped.
func Build(cfgs []config.SourceConfig, market *marketdata.Client, logger *slog.Logger) []ports.NewsSource {
	out := make([]ports.NewsSource, 0, len(cfgs))
	for _, sc := range cfgs {
		switch sc.Kind {
		case "rss":
			out = append(out, NewRSSSource(sc.Name, sc.URL, sc.MaxItems))
		case "web":
			out = append(out, NewWebSource(sc.Name, sc.URL, sc.Selectors, sc.MaxItems, nil))
		case "finnhub":
			if market == nil {
				logger.Warn("skipping finnhub source, no API key configured", "source", sc.Name)
				continue
			}
			out = append(out, marketdata.NewNewsSource(market, sc.Name, sc.Category, sc.MaxItems))
		default:
			logger.Warn("skipping source with unknown kind", "source", sc.Name, "kind", sc.Kind)
		}
	}
	return out
}
