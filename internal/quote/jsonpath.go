package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/kjannette/stonks-backend/internal/httputil"
)

// JSONPathProvider reads any JSON quote endpoint whose price and change
// fields can be addressed with JSONPath expressions. The URL template must
// contain "{symbol}".
type JSONPathProvider struct {
	name          string
	urlTemplate   string
	pricePath     string
	changePath    string
	prevClosePath string
	httpClient    *http.Client
}

type JSONPathOptions struct {
	Name          string
	URLTemplate   string
	PricePath     string
	ChangePath    string // optional
	PrevClosePath string // optional
	Timeout       time.Duration
}

func NewJSONPathProvider(opts JSONPathOptions) (*JSONPathProvider, error) {
	if !strings.Contains(opts.URLTemplate, "{symbol}") {
		return nil, fmt.Errorf("url template %q has no {symbol} placeholder", opts.URLTemplate)
	}
	if opts.PricePath == "" {
		return nil, fmt.Errorf("price path is required")
	}
	name := opts.Name
	if name == "" {
		name = "jsonpath"
	}
	return &JSONPathProvider{
		name:          name,
		urlTemplate:   opts.URLTemplate,
		pricePath:     opts.PricePath,
		changePath:    opts.ChangePath,
		prevClosePath: opts.PrevClosePath,
		httpClient:    &http.Client{Timeout: opts.Timeout},
	}, nil
}

func (p *JSONPathProvider) Name() string { return p.name }

func (p *JSONPathProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	addr := strings.ReplaceAll(p.urlTemplate, "{symbol}", url.QueryEscape(symbol))

	var doc any
	if err := httputil.GetJSON(ctx, p.httpClient, httputil.SingleAttempt, addr, &doc); err != nil {
		return Quote{}, fmt.Errorf("%s %s: %w", p.name, symbol, err)
	}

	price, ok := lookupDecimal(doc, p.pricePath)
	if !ok || !price.IsPositive() {
		return Quote{}, fmt.Errorf("%s %s: missing price at %s", p.name, symbol, p.pricePath)
	}

	change := decimal.Zero
	if c, ok := lookupDecimal(doc, p.changePath); ok {
		change = c
	} else if prev, ok := lookupDecimal(doc, p.prevClosePath); ok {
		change = percentChange(price, prev)
	}

	return Quote{
		Symbol:        symbol,
		Name:          symbol,
		Price:         price,
		ChangePercent: change,
		Provider:      p.name,
	}, nil
}

func lookupDecimal(doc any, path string) (decimal.Decimal, bool) {
	if path == "" {
		return decimal.Zero, false
	}
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return decimal.Zero, false
	}
	// jsonpath may hand back a one-element list for wildcard paths
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return decimal.Zero, false
		}
		v = list[0]
	}
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(x), true
	}
	return decimal.Zero, false
}
