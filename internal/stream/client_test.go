package stream

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BullionBear/sequex-ingest/internal/market"
	"github.com/BullionBear/sequex-ingest/pkg/eventbus"
)

func TestBuildStreamURL(t *testing.T) {
	got := BuildStreamURL("wss://fstream.binance.com", "BTCUSDT", []string{"aggTrade", "depth@0ms", "kline_1m"})
	want := "wss://fstream.binance.com/stream?streams=btcusdt@aggTrade/btcusdt@depth@0ms/btcusdt@kline_1m"
	if got != want {
		t.Fatalf("BuildStreamURL = %q, want %q", got, want)
	}
}

type fakeSubmitter struct {
	calls []*market.DepthDiffEvent
}

func (f *fakeSubmitter) SubmitDiff(symbol string, ev *market.DepthDiffEvent) {
	f.calls = append(f.calls, ev)
}

func TestHandleFrameClassifiesDepth(t *testing.T) {
	bus := eventbus.New(4)
	sub := &fakeSubmitter{}
	c := New("BTCUSDT", "", bus, sub, zerolog.Nop())

	payload := []byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","s":"BTCUSDT","U":1,"u":2,"pu":0,"b":[["10","1"]],"a":[["11","1"]]}}`)
	if err := c.handleFrame(context.Background(), payload, time.Now()); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}

	select {
	case rec := <-bus.Records():
		if rec.Kind != market.RecordKindDepth {
			t.Fatalf("Kind = %v, want depth", rec.Kind)
		}
		if rec.Depth.FinalUpdateID != 2 {
			t.Fatalf("FinalUpdateID = %d, want 2", rec.Depth.FinalUpdateID)
		}
	default:
		t.Fatalf("expected a published record")
	}

	if len(sub.calls) != 1 {
		t.Fatalf("expected depth event submitted to manager, got %d calls", len(sub.calls))
	}
}

func TestHandleFrameDropsUnrecognizedStream(t *testing.T) {
	bus := eventbus.New(4)
	c := New("BTCUSDT", "", bus, nil, zerolog.Nop())

	payload := []byte(`{"stream":"btcusdt@forceOrder","data":{}}`)
	if err := c.handleFrame(context.Background(), payload, time.Now()); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	select {
	case rec := <-bus.Records():
		t.Fatalf("did not expect a published record, got %+v", rec)
	default:
	}
}
