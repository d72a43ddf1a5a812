package sink

import (
	"errors"

	"github.com/efreitasn/dexbook/internal/domain"
)

// Fanout delivers each trade to every listener in order. All listeners
// see the trade even if an earlier one fails; the failures are joined.
type Fanout []domain.TradeListener

// OnTrade implements domain.TradeListener.
func (f Fanout) OnTrade(t domain.Trade) error {
	var errs []error
	for _, l := range f {
		if err := l.OnTrade(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
