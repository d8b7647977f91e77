// Package orderbook implements the per-symbol local order book and the
// synchronization state machine that governs it, plus the book manager
// that owns one instance of each per configured symbol.
//
// The price ladder is an ordered map keyed by a precise decimal rather
// than a float, so price equality never drifts. Bids and asks share one
// ascending comparator; "best" and "worst" are simply Max()/Min() on the
// underlying treemap, with direction chosen by the caller rather than by
// storing negated keys.
package orderbook

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"github.com/BullionBear/sequex-ingest/internal/market"
)

func decimalComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// Side distinguishes the bid and ask ladders of a Book.
type Side int

const (
	Bid Side = iota
	Ask
)

// Level is a parsed, typed price level for in-process reading, as opposed
// to market.PriceLevel which preserves the raw wire strings.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Book is a per-symbol price-indexed ladder with bounded depth on each
// side. It has exactly one mutator in this process: the owning Sync.
type Book struct {
	symbol   string
	bids     *treemap.Map
	asks     *treemap.Map
	maxDepth int
}

// NewBook constructs an empty Book. maxDepth <= 0 falls back to 1000.
func NewBook(symbol string, maxDepth int) *Book {
	if maxDepth <= 0 {
		maxDepth = 1000
	}
	return &Book{
		symbol:   symbol,
		bids:     treemap.NewWith(decimalComparator),
		asks:     treemap.NewWith(decimalComparator),
		maxDepth: maxDepth,
	}
}

func (b *Book) ladder(side Side) *treemap.Map {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// Reset clears both ladders, used before loading a fresh snapshot.
func (b *Book) Reset() {
	b.bids.Clear()
	b.asks.Clear()
}

// LoadSnapshot replaces both ladders with the given levels, inserting only
// strictly-positive quantities.
func (b *Book) LoadSnapshot(bids, asks []market.PriceLevel) error {
	b.Reset()
	if err := b.insertAll(Bid, bids); err != nil {
		return fmt.Errorf("orderbook: load snapshot bids: %w", err)
	}
	if err := b.insertAll(Ask, asks); err != nil {
		return fmt.Errorf("orderbook: load snapshot asks: %w", err)
	}
	return nil
}

func (b *Book) insertAll(side Side, levels []market.PriceLevel) error {
	for _, lvl := range levels {
		price, qty, err := parseLevel(lvl)
		if err != nil {
			return err
		}
		if qty.Sign() <= 0 {
			continue
		}
		b.ladder(side).Put(price, qty)
	}
	b.trim(side)
	return nil
}

func parseLevel(lvl market.PriceLevel) (decimal.Decimal, decimal.Decimal, error) {
	price, err := decimal.NewFromString(lvl.Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("orderbook: parse price %q: %w", lvl.Price, err)
	}
	qty, err := decimal.NewFromString(lvl.Quantity)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("orderbook: parse quantity %q: %w", lvl.Quantity, err)
	}
	return price, qty, nil
}

// ApplyDiff applies a batch of (price, qty) deltas to one side: zero
// quantity deletes the key, non-zero replaces it. It then trims the side
// down to maxDepth.
func (b *Book) ApplyDiff(side Side, levels []market.PriceLevel) error {
	ladder := b.ladder(side)
	for _, lvl := range levels {
		price, qty, err := parseLevel(lvl)
		if err != nil {
			return err
		}
		if qty.Sign() == 0 {
			ladder.Remove(price)
			continue
		}
		ladder.Put(price, qty)
	}
	b.trim(side)
	return nil
}

// trim removes the worst-priced level on side until its size is back at
// or below maxDepth: the lowest bid, or the highest ask.
func (b *Book) trim(side Side) {
	ladder := b.ladder(side)
	for ladder.Size() > b.maxDepth {
		var worstKey interface{}
		if side == Bid {
			worstKey, _ = ladder.Min()
		} else {
			worstKey, _ = ladder.Max()
		}
		if worstKey == nil {
			return
		}
		ladder.Remove(worstKey)
	}
}

// BestBid returns the highest bid level, if any.
func (b *Book) BestBid() (Level, bool) {
	key, val := b.bids.Max()
	if key == nil {
		return Level{}, false
	}
	return Level{Price: key.(decimal.Decimal), Quantity: val.(decimal.Decimal)}, true
}

// BestAsk returns the lowest ask level, if any.
func (b *Book) BestAsk() (Level, bool) {
	key, val := b.asks.Min()
	if key == nil {
		return Level{}, false
	}
	return Level{Price: key.(decimal.Decimal), Quantity: val.(decimal.Decimal)}, true
}

// Crossed reports whether the book is currently crossed: best bid >= best
// ask. A book with an empty side is never considered crossed.
func (b *Book) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return false
	}
	return bid.Price.Cmp(ask.Price) >= 0
}

// Sizes returns the current level counts of each side.
func (b *Book) Sizes() (bids, asks int) {
	return b.bids.Size(), b.asks.Size()
}

// TopLevels returns up to n levels on side, best-first, as raw wire-form
// PriceLevel pairs, for CSV/summary rendering.
func (b *Book) TopLevels(side Side, n int) []market.PriceLevel {
	ladder := b.ladder(side)
	it := ladder.Iterator()
	out := make([]market.PriceLevel, 0, n)

	if side == Ask {
		for it.Next() && len(out) < n {
			out = append(out, levelToPriceLevel(it.Key(), it.Value()))
		}
		return out
	}

	it.End()
	for it.Prev() && len(out) < n {
		out = append(out, levelToPriceLevel(it.Key(), it.Value()))
	}
	return out
}

func levelToPriceLevel(key, value interface{}) market.PriceLevel {
	return market.PriceLevel{
		Price:    key.(decimal.Decimal).String(),
		Quantity: value.(decimal.Decimal).String(),
	}
}
