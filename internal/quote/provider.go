package quote

import "context"

// Provider fetches one live quote. Implementations report any failure as an
// error; the Adapter decides what to do about it.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (Quote, error)
}
