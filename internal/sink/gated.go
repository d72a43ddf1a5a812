package sink

import (
	"fmt"

	"github.com/efreitasn/dexbook/internal/domain"
)

// Gated hands a trade to Next only once Gate has accepted it. It puts
// the journal in front of the announcing sinks so nothing is published
// that was not recorded first.
type Gated struct {
	Gate domain.TradeListener
	Next domain.TradeListener
}

// OnTrade implements domain.TradeListener.
func (g Gated) OnTrade(t domain.Trade) error {
	if err := g.Gate.OnTrade(t); err != nil {
		return fmt.Errorf("trade withheld: %w", err)
	}
	return g.Next.OnTrade(t)
}
