package writer

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/BullionBear/sequex-ingest/internal/market"
)

// header returns the fixed column order for one record kind. It is
// written exactly once per file, on creation.
func header(kind market.RecordKind) []string {
	switch kind {
	case market.RecordKindAggTrade:
		return []string{"localtime", "stream", "e", "E", "s", "a", "p", "q", "f", "l", "T", "m"}
	case market.RecordKindDepth:
		return []string{"localtime", "stream", "e", "E", "T", "s", "U", "u", "pu", "bids", "asks", "bids_count", "asks_count"}
	case market.RecordKindKline:
		return []string{"localtime", "stream", "e", "E", "s", "k_t", "k_T", "k_i", "k_f", "k_L", "k_o", "k_c", "k_h", "k_l", "k_v", "k_n", "k_x", "k_q", "k_V", "k_Q"}
	case market.RecordKindSummary:
		return []string{"localtime", "symbol", "best_bid", "best_ask", "spread", "last_update_id", "update_count", "resync_count", "bids_count", "asks_count", "top_bids", "top_asks"}
	case market.RecordKindSnapshot:
		return []string{"rank", "type", "price", "quantity", "localtime", "lastUpdateId"}
	default:
		return nil
	}
}

// row renders a single Record into its CSV fields per kind, in the JSON-
// encoded long-row form canonical for depth.
func row(rec market.Record) ([]string, error) {
	localtime := strconv.FormatInt(rec.LocalTime.UnixMicro(), 10)

	switch rec.Kind {
	case market.RecordKindAggTrade:
		ev := rec.AggTrade
		return []string{
			localtime, rec.Stream, ev.EventType, itoa(ev.EventTime), ev.Symbol,
			itoa(ev.AggTradeID), ev.Price, ev.Quantity, itoa(ev.FirstTradeID), itoa(ev.LastTradeID),
			itoa(ev.TradeTime), strconv.FormatBool(ev.IsBuyerMaker),
		}, nil

	case market.RecordKindDepth:
		ev := rec.Depth
		bidsJSON, err := json.Marshal(ev.Bids)
		if err != nil {
			return nil, fmt.Errorf("writer: encode bids: %w", err)
		}
		asksJSON, err := json.Marshal(ev.Asks)
		if err != nil {
			return nil, fmt.Errorf("writer: encode asks: %w", err)
		}
		return []string{
			localtime, rec.Stream, ev.EventType, itoa(ev.EventTime), itoa(ev.TransactionTime), ev.Symbol,
			itoa(ev.FirstUpdateID), itoa(ev.FinalUpdateID), itoa(ev.PrevUpdateID),
			string(bidsJSON), string(asksJSON), strconv.Itoa(len(ev.Bids)), strconv.Itoa(len(ev.Asks)),
		}, nil

	case market.RecordKindKline:
		ev := rec.Kline
		k := ev.Kline
		return []string{
			localtime, rec.Stream, ev.EventType, itoa(ev.EventTime), ev.Symbol,
			itoa(k.StartTime), itoa(k.CloseTime), k.Interval, itoa(k.FirstTradeID), itoa(k.LastTradeID),
			k.Open, k.Close, k.High, k.Low, k.Volume, itoa(k.NumberOfTrades), strconv.FormatBool(k.IsClosed),
			k.QuoteVolume, k.TakerBuyBaseVolume, k.TakerBuyQuoteVolume,
		}, nil

	case market.RecordKindSummary:
		s := rec.Summary
		topBids, err := json.Marshal(s.TopBids)
		if err != nil {
			return nil, fmt.Errorf("writer: encode top bids: %w", err)
		}
		topAsks, err := json.Marshal(s.TopAsks)
		if err != nil {
			return nil, fmt.Errorf("writer: encode top asks: %w", err)
		}
		return []string{
			localtime, s.Symbol, s.BestBid, s.BestAsk, s.Spread, itoa(s.LastUpdateID),
			itoa(s.UpdateCount), itoa(s.ResyncCount), strconv.Itoa(s.BidsCount), strconv.Itoa(s.AsksCount),
			string(topBids), string(topAsks),
		}, nil

	default:
		return nil, fmt.Errorf("writer: no row schema for kind %q", rec.Kind)
	}
}

// snapshotRows renders a snapshot Record into its row-per-level form,
// bids descending then asks ascending, reserved for the snapshot kind
// only.
func snapshotRows(rec market.Record) [][]string {
	snap := rec.Snapshot
	localtime := strconv.FormatInt(rec.LocalTime.UnixMicro(), 10)
	lastUpdateID := itoa(snap.LastUpdateID)

	rows := make([][]string, 0, len(snap.Bids)+len(snap.Asks))
	for rank, lvl := range snap.Bids {
		rows = append(rows, []string{strconv.Itoa(rank), "bid", lvl[0], lvl[1], localtime, lastUpdateID})
	}
	for rank, lvl := range snap.Asks {
		rows = append(rows, []string{strconv.Itoa(rank), "ask", lvl[0], lvl[1], localtime, lastUpdateID})
	}
	return rows
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
