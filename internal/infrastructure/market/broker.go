// Package market talks to the broker REST API for instrument quotes and to
// the public dollar feed for the official/MEP pair.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/infrastructure/netx"
)

// ErrAuthFailed is returned when the broker rejects the configured
// credentials.
var ErrAuthFailed = errors.New("broker authentication failed")

// ErrNoMarketData is returned when the broker has no book for an instrument.
var ErrNoMarketData = errors.New("no market data for instrument")

// BrokerCredentials authenticate against the broker API. They come from the
// environment and are only required in live mode.
type BrokerCredentials struct {
	User     string
	Password string
	Account  string
}

// BrokerClient is a remarkets-style REST client. Authentication exchanges the
// credentials for a session token carried on every subsequent request.
type BrokerClient struct {
	client *resty.Client
	guard  *netx.Guard
	creds  BrokerCredentials
	log    zerolog.Logger

	mu    sync.Mutex
	token string
}

// NewBrokerClient creates a broker client against the given base URL.
func NewBrokerClient(baseURL string, creds BrokerCredentials, guard *netx.Guard, log zerolog.Logger) *BrokerClient {
	return &BrokerClient{
		client: resty.New().SetBaseURL(baseURL),
		guard:  guard,
		creds:  creds,
		log:    log.With().Str("component", "broker").Logger(),
	}
}

// Authenticate obtains a session token. Call once at startup in live mode;
// paper mode reads public market data and never needs it.
func (c *BrokerClient) Authenticate(ctx context.Context) error {
	return c.guard.Do(ctx, "auth", func(ctx context.Context) error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("X-Username", c.creds.User).
			SetHeader("X-Password", c.creds.Password).
			Post("/auth/getToken")
		if err != nil {
			return err
		}
		if resp.StatusCode() == 401 {
			return ErrAuthFailed
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("auth returned status %d", resp.StatusCode())
		}

		token := resp.Header().Get("X-Auth-Token")
		if token == "" {
			return ErrAuthFailed
		}

		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		c.log.Info().Msg("broker session established")
		return nil
	})
}

type bookEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type marketDataResponse struct {
	Status     string `json:"status"`
	MarketData struct {
		Last   *bookEntry  `json:"LA"`
		Bids   []bookEntry `json:"BI"`
		Offers []bookEntry `json:"OF"`
		Volume *struct {
			Size float64 `json:"size"`
		} `json:"TV"`
	} `json:"marketData"`
}

// Snapshot fetches the current book for one instrument.
func (c *BrokerClient) Snapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error) {
	var out marketDataResponse

	err := c.guard.Do(ctx, "marketdata", func(ctx context.Context) error {
		req := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"marketId": "ROFX",
				"symbol":   instrument,
				"entries":  "LA,BI,OF,TV",
				"depth":    "1",
			}).
			SetResult(&out)

		c.mu.Lock()
		if c.token != "" {
			req.SetHeader("X-Auth-Token", c.token)
		}
		c.mu.Unlock()

		resp, err := req.Get("/rest/marketdata/get")
		if err != nil {
			return err
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("marketdata returned status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	md := out.MarketData
	if out.Status != "OK" || md.Last == nil {
		return domain.MarketSnapshot{}, fmt.Errorf("%w: %s", ErrNoMarketData, instrument)
	}

	snap := domain.MarketSnapshot{
		Instrument: instrument,
		Timestamp:  time.Now().UTC(),
		Price:      md.Last.Price,
	}
	if len(md.Bids) > 0 {
		snap.Bid = md.Bids[0].Price
	}
	if len(md.Offers) > 0 {
		snap.Ask = md.Offers[0].Price
	}
	if md.Volume != nil {
		snap.Volume = md.Volume.Size
	}
	return snap, nil
}
