package book

import (
	orderv1 "github.com/Ephibbs/PanoMarket/internal/domain/order/v1"
	"github.com/shopspring/decimal"
)

// level is one price level holding resting orders in arrival order (FIFO).
type level struct {
	price  decimal.Decimal
	orders []*orderv1.Order
}

func (l *level) empty() bool {
	return len(l.orders) == 0
}

// side holds one book side's price levels, best price first: lowest first
// for asks, highest first for bids.
type side struct {
	better func(a, b decimal.Decimal) bool
	levels []*level
}

func newAskSide() *side {
	return &side{
		better: func(a, b decimal.Decimal) bool { return a.LessThan(b) },
	}
}

func newBidSide() *side {
	return &side{
		better: func(a, b decimal.Decimal) bool { return a.GreaterThan(b) },
	}
}

// insert places a resting order at its price level, creating the level at
// the right position if it does not exist yet. Appending to the level keeps
// strict FIFO within a price.
func (s *side) insert(o *orderv1.Order) {
	for i, lvl := range s.levels {
		if lvl.price.Equal(o.Price) {
			lvl.orders = append(lvl.orders, o)
			return
		}
		if s.better(o.Price, lvl.price) {
			lvl := &level{price: o.Price, orders: []*orderv1.Order{o}}
			s.levels = append(s.levels[:i], append([]*level{lvl}, s.levels[i:]...)...)
			return
		}
	}
	s.levels = append(s.levels, &level{price: o.Price, orders: []*orderv1.Order{o}})
}

// best returns the most favorable level, or nil for an empty side.
func (s *side) best() *level {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

// dropBest removes the best level once it has no orders left.
func (s *side) dropBest() {
	if len(s.levels) > 0 {
		s.levels = s.levels[1:]
	}
}

// flatten returns all resting orders in priority order: level by level from
// the best price, FIFO within each level.
func (s *side) flatten() []*orderv1.Order {
	var orders []*orderv1.Order
	for _, lvl := range s.levels {
		orders = append(orders, lvl.orders...)
	}
	return orders
}
