package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kjannette/stonks-backend/internal/watchlist"
)

type fakeSource struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSource) Market(ctx context.Context, userID int64) ([]watchlist.Row, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []watchlist.Row{{Symbol: "AAPL", PriceCents: 18000 + int64(n), ChangePercent: decimal.RequireFromString("0.5")}}, nil
}

func TestRun_EmitsOnInterval(t *testing.T) {
	src := &fakeSource{}
	p := NewPoller(src, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got [][]watchlist.Row
	stop := errors.New("stop")
	err := p.Run(ctx, 1, func(rows []watchlist.Row) error {
		got = append(got, rows)
		if len(got) == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected stop, got %v", err)
	}
	if len(got) != 3 || got[0][0].PriceCents == got[2][0].PriceCents {
		t.Fatalf("expected three distinct snapshots, got %+v", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := NewPoller(&fakeSource{}, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, 1, func([]watchlist.Row) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_SourceError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPoller(&fakeSource{err: boom}, time.Millisecond, zerolog.Nop())
	if err := p.Run(context.Background(), 1, func([]watchlist.Row) error { return nil }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestServeSSE(t *testing.T) {
	p := NewPoller(&fakeSource{}, 10*time.Millisecond, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.ServeSSE(w, r, 7)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	events := 0
	for sc.Scan() && events < 2 {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rows []watchlist.Row
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rows); err != nil {
			t.Fatalf("bad event payload %q: %v", line, err)
		}
		if len(rows) != 1 || rows[0].Symbol != "AAPL" {
			t.Fatalf("unexpected rows: %+v", rows)
		}
		events++
	}
	if events != 2 {
		t.Fatalf("expected 2 events, got %d", events)
	}
}

func TestServeWS(t *testing.T) {
	p := NewPoller(&fakeSource{}, 10*time.Millisecond, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.ServeWS(w, r, 7)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var rows []watchlist.Row
		if err := conn.ReadJSON(&rows); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if len(rows) != 1 || rows[0].Symbol != "AAPL" {
			t.Fatalf("unexpected rows: %+v", rows)
		}
	}
}
