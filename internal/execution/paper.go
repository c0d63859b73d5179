package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"propdesk/internal/apperr"
	"propdesk/internal/models"
)

// Paper fills every order immediately at the requested price, moved against
// the trader by SlippagePips.
type Paper struct {
	SlippagePips float64
	PipSize      float64
	Clock        clockwork.Clock

	seq  atomic.Int64
	mu   sync.Mutex
	open map[string]models.TradeSide
}

func (p *Paper) Place(ctx context.Context, o Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, apperr.Unavailable("GATEWAY_UNAVAILABLE", err)
	}
	if o.Volume <= 0 || o.Price <= 0 {
		return Fill{}, apperr.Validation("INVALID_ORDER", "volume and price must be positive", nil)
	}
	ticket := fmt.Sprintf("PAPER-%d", p.seq.Add(1))
	p.mu.Lock()
	if p.open == nil {
		p.open = map[string]models.TradeSide{}
	}
	p.open[ticket] = o.Side
	p.mu.Unlock()
	return Fill{Ticket: ticket, Price: p.slip(o.Price, o.Side.Sign()), At: p.now()}, nil
}

func (p *Paper) Close(ctx context.Context, ticket string, price float64) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, apperr.Unavailable("GATEWAY_UNAVAILABLE", err)
	}
	p.mu.Lock()
	side, ok := p.open[ticket]
	delete(p.open, ticket)
	p.mu.Unlock()
	if !ok {
		// Unknown tickets come from trades opened manually or before a restart.
		return Fill{Ticket: ticket, Price: price, At: p.now()}, nil
	}
	// Closing a buy sells, so slippage runs the other way.
	return Fill{Ticket: ticket, Price: p.slip(price, -side.Sign()), At: p.now()}, nil
}

func (p *Paper) slip(price, sign float64) float64 {
	if p.SlippagePips <= 0 {
		return price
	}
	pip := p.PipSize
	if pip <= 0 {
		pip = 0.0001
	}
	return price + sign*p.SlippagePips*pip
}

func (p *Paper) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock.Now().UTC()
}
