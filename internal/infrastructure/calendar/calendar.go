// Package calendar scrapes the Treasury auction schedule and published
// results. The page is server-rendered HTML; parsing failures on individual
// rows are logged and skipped so one malformed announcement never hides the
// rest of the schedule.
package calendar

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/infrastructure/netx"
)

var (
	// Instrument tickers: LECAPs (S31L6), BONCAPs (T15E7), CER bonds
	// (TZX26, TZXD6) and dollar-linked (D30A6).
	instrumentRe = regexp.MustCompile(`\b(TZX[A-Z0-9]\d|S\d{2}[A-Z]\d|T\d{2}[A-Z]\d|D\d{2}[A-Z]\d)\b`)

	// No trailing word boundary: goquery's Text() joins adjacent cells
	// without whitespace, so a year may run straight into the next cell.
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})`)
	longDateRe    = regexp.MustCompile(`\b(\d{1,2})\s+de\s+([a-záéíóú]+)\s+de\s+(\d{4})`)
	rolloverRe    = regexp.MustCompile(`(?:rollover|renovaci[oó]n)\D{0,40}?(\d{1,3}(?:[.,]\d+)?)\s*%`)

	spanishMonths = map[string]time.Month{
		"enero": time.January, "febrero": time.February, "marzo": time.March,
		"abril": time.April, "mayo": time.May, "junio": time.June,
		"julio": time.July, "agosto": time.August, "septiembre": time.September,
		"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
	}
)

// Provider fetches and parses the auction calendar page.
type Provider struct {
	client              *resty.Client
	guard               *netx.Guard
	url                 string
	fallbackInstruments []string
	log                 zerolog.Logger
}

// NewProvider creates a calendar provider. fallbackInstruments are attached
// to announcements that name no tickers.
func NewProvider(url string, guard *netx.Guard, fallbackInstruments []string, log zerolog.Logger) *Provider {
	return &Provider{
		client:              resty.New(),
		guard:               guard,
		url:                 url,
		fallbackInstruments: fallbackInstruments,
		log:                 log.With().Str("component", "calendar").Logger(),
	}
}

// FetchEvents downloads the schedule page and returns the parsed events.
func (p *Provider) FetchEvents(ctx context.Context) ([]domain.AuctionEvent, error) {
	var body string
	err := p.guard.Do(ctx, "fetch_calendar", func(ctx context.Context) error {
		resp, err := p.client.R().SetContext(ctx).Get(p.url)
		if err != nil {
			return err
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("calendar page returned status %d", resp.StatusCode())
		}
		body = resp.String()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Parse(strings.NewReader(body))
}

// Parse extracts auction events from the schedule HTML. Rows without a
// parseable date are skipped and logged.
func (p *Provider) Parse(r io.Reader) ([]domain.AuctionEvent, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar html: %w", err)
	}

	byDate := make(map[time.Time]*domain.AuctionEvent)
	var order []time.Time

	doc.Find("table tr, .announcement, article").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}

		date, ok := parseDate(text)
		if !ok {
			if strings.Contains(strings.ToLower(text), "licitaci") {
				p.log.Debug().Str("row", truncate(text, 80)).Msg("skipping row without parseable date")
			}
			return
		}

		instruments := instrumentRe.FindAllString(text, -1)
		if len(instruments) == 0 {
			instruments = p.fallbackInstruments
		}

		event, exists := byDate[date]
		if !exists {
			event = &domain.AuctionEvent{
				Date:      date,
				SourceRef: p.url + "#" + date.Format("2006-01-02"),
			}
			byDate[date] = event
			order = append(order, date)
		}
		event.Instruments = mergeUnique(event.Instruments, instruments)

		if pct, ok := parseRollover(text); ok {
			event.RolloverPct = &pct
		}
	})

	events := make([]domain.AuctionEvent, 0, len(order))
	for _, d := range order {
		events = append(events, *byDate[d])
	}
	return events, nil
}

// parseDate accepts both dd/mm/yyyy and Spanish long form dates.
func parseDate(text string) (time.Time, bool) {
	if m := numericDateRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}
	if m := longDateRe.FindStringSubmatch(strings.ToLower(text)); m != nil {
		month, ok := spanishMonths[m[2]]
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// parseRollover extracts a published rollover percentage as a fraction.
func parseRollover(text string) (float64, bool) {
	m := rolloverRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(m[1], ",", ".")
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil || pct > 200 {
		return 0, false
	}
	return pct / 100, true
}

func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			existing = append(existing, s)
			seen[s] = true
		}
	}
	return existing
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
