package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/infrastructure/netx"
)

// ErrQuoteIncomplete is returned when the feed is missing either leg of the
// official/MEP pair.
var ErrQuoteIncomplete = errors.New("dollar feed missing official or mep quote")

// DollarFeed reads the public exchange-rate API that publishes one entry per
// dollar market.
type DollarFeed struct {
	client *resty.Client
	guard  *netx.Guard
	url    string
	log    zerolog.Logger
}

// NewDollarFeed creates a feed client for the given endpoint.
func NewDollarFeed(url string, guard *netx.Guard, log zerolog.Logger) *DollarFeed {
	return &DollarFeed{
		client: resty.New(),
		guard:  guard,
		url:    url,
		log:    log.With().Str("component", "dollar_feed").Logger(),
	}
}

type dollarEntry struct {
	Casa  string  `json:"casa"`
	Name  string  `json:"nombre"`
	Buy   float64 `json:"compra"`
	Sell  float64 `json:"venta"`
	Stamp string  `json:"fechaActualizacion"`
}

// Quote fetches both legs of the pair. The sell side is the relevant rate for
// a peso holder buying dollars.
func (f *DollarFeed) Quote(ctx context.Context) (domain.DollarQuote, error) {
	var entries []dollarEntry

	err := f.guard.Do(ctx, "fetch_dollar", func(ctx context.Context) error {
		resp, err := f.client.R().
			SetContext(ctx).
			SetResult(&entries).
			Get(f.url)
		if err != nil {
			return err
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("dollar feed returned status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return domain.DollarQuote{}, err
	}

	quote := domain.DollarQuote{Timestamp: time.Now().UTC()}
	for _, e := range entries {
		switch strings.ToLower(e.Casa) {
		case "oficial":
			quote.Official = e.Sell
		case "bolsa":
			quote.MEP = e.Sell
		}
	}
	if quote.Official <= 0 || quote.MEP <= 0 {
		return domain.DollarQuote{}, ErrQuoteIncomplete
	}
	return quote, nil
}
