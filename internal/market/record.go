// Package market defines the wire-level and bus-level data types shared
// across the ingestion pipeline: depth diffs, snapshots, kline/aggTrade
// frames, and the tagged Record envelope carried on the event-bus.
package market

import (
	"encoding/json"
	"time"
)

// RecordKind tags the variant carried by a Record.
type RecordKind string

const (
	RecordKindAggTrade RecordKind = "aggtrade"
	RecordKindDepth    RecordKind = "depth"
	RecordKindKline    RecordKind = "kline"
	RecordKindSnapshot RecordKind = "snapshot"
	RecordKindSummary  RecordKind = "summary"
)

// PriceLevel is a raw (price, quantity) pair as received over the wire,
// kept in string form so CSV rows preserve the exchange's precision.
type PriceLevel struct {
	Price    string
	Quantity string
}

// MarshalJSON renders a PriceLevel as a [price, quantity] pair rather than
// an object, matching the wire form depth diffs and snapshots use so the
// summary's top_bids/top_asks columns are encoded the same way.
func (p PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Price, p.Quantity})
}

// DepthDiffEvent is the external wire form of an incremental depth update.
type DepthDiffEvent struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	TransactionTime int64  `json:"T"`
	Symbol          string `json:"s"`
	FirstUpdateID   int64  `json:"U"`
	FinalUpdateID   int64  `json:"u"`
	PrevUpdateID    int64  `json:"pu"`
	Bids            [][2]string `json:"b"`
	Asks            [][2]string `json:"a"`
}

// BidLevels and AskLevels convert the raw [][2]string wire pairs into
// PriceLevel slices.
func (d *DepthDiffEvent) BidLevels() []PriceLevel { return pairsToLevels(d.Bids) }
func (d *DepthDiffEvent) AskLevels() []PriceLevel { return pairsToLevels(d.Asks) }

func pairsToLevels(pairs [][2]string) []PriceLevel {
	out := make([]PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return out
}

// DepthSnapshot is the external wire form of a full book snapshot.
type DepthSnapshot struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
	LocalTime    time.Time   `json:"-"`
}

func (s *DepthSnapshot) BidLevels() []PriceLevel { return pairsToLevels(s.Bids) }
func (s *DepthSnapshot) AskLevels() []PriceLevel { return pairsToLevels(s.Asks) }

// KlineEvent is the external wire form of a kline/candlestick frame.
type KlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime                int64  `json:"t"`
		CloseTime                int64  `json:"T"`
		Interval                 string `json:"i"`
		FirstTradeID             int64  `json:"f"`
		LastTradeID              int64  `json:"L"`
		Open                     string `json:"o"`
		Close                    string `json:"c"`
		High                     string `json:"h"`
		Low                      string `json:"l"`
		Volume                   string `json:"v"`
		NumberOfTrades           int64  `json:"n"`
		IsClosed                 bool   `json:"x"`
		QuoteVolume              string `json:"q"`
		TakerBuyBaseVolume       string `json:"V"`
		TakerBuyQuoteVolume      string `json:"Q"`
	} `json:"k"`
}

// AggTradeEvent is the external wire form of an aggregated trade.
type AggTradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// Summary is the periodic order-book digest emitted by the book manager.
type Summary struct {
	Symbol        string
	BestBid       string
	BestAsk       string
	Spread        string
	LastUpdateID  int64
	UpdateCount   int64
	ResyncCount   int64
	BidsCount     int
	AsksCount     int
	TopBids       []PriceLevel
	TopAsks       []PriceLevel
}

// Record is the tagged union carried on the event-bus. Exactly one of the
// payload fields is populated, matching Kind.
type Record struct {
	ID        string
	Kind      RecordKind
	Symbol    string
	Stream    string
	LocalTime time.Time

	AggTrade *AggTradeEvent
	Depth    *DepthDiffEvent
	Kline    *KlineEvent
	Snapshot *DepthSnapshot
	Summary  *Summary
}
