package feed

// Websocket price feed. Connects to a trade stream, fans samples out to
// subscribers, and keeps a window of recent prices for volatility quotes.
// Reconnection with exponential backoff and jitter is handled here — the
// engine only sees a channel of samples.

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zonebet/engine/internal/domain"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterPercent  = 0.2

	readTimeout = 90 * time.Second

	// recentWindow bounds the price history kept for volatility estimates.
	recentWindow = 120

	subscriberBuffer = 64
)

// tradeEvent is the wire format of one trade on the stream
// (Binance-compatible: p = price, T = trade time in ms).
type tradeEvent struct {
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Service implements ports.PriceFeed. Create with NewService, call Start
// once; Subscribe/Unsubscribe may be used from any goroutine.
type Service struct {
	url string

	mu      sync.Mutex
	subs    map[int]chan domain.PriceSample
	nextSub int
	recent  []float64

	backoff time.Duration
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// NewService creates a feed for the given websocket stream URL.
func NewService(url string) *Service {
	return &Service{
		url:     url,
		subs:    make(map[int]chan domain.PriceSample),
		backoff: initialBackoff,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the connection loop. Returns immediately.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.runLoop(ctx)
}

// Stop shuts the feed down and waits for the loop to exit. Idempotent.
func (s *Service) Stop() {
	s.stop.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Subscribe registers a consumer. The returned unsubscribe func is
// idempotent: calling it twice (or racing Stop) is safe.
func (s *Service) Subscribe() (<-chan domain.PriceSample, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan domain.PriceSample, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// RecentPrices returns up to n recent prices, oldest first.
func (s *Service) RecentPrices(n int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) <= n {
		return append([]float64(nil), s.recent...)
	}
	return append([]float64(nil), s.recent[len(s.recent)-n:]...)
}

func (s *Service) runLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			slog.Error("feed: connect failed", "url", s.url, "backoff", s.backoff, "err", err)
			s.waitBackoff(ctx)
			continue
		}
		slog.Info("feed: connected", "url", s.url)
		s.backoff = initialBackoff

		// Unblock a pending ReadMessage when we are told to stop.
		readDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
			case <-s.stopCh:
			case <-readDone:
			}
			conn.Close()
		}()

		if err := s.readLoop(ctx, conn); err != nil {
			slog.Warn("feed: read error, reconnecting", "err", err)
		}
		close(readDone)
		conn.Close()
	}
}

func (s *Service) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev tradeEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Price == "" {
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		observed := time.Now()
		if ev.TradeTime > 0 {
			observed = time.UnixMilli(ev.TradeTime)
		}
		s.publish(domain.PriceSample{Price: price, ObservedAt: observed})
	}
}

// publish records the price and fans the sample out. Slow subscribers drop
// samples rather than stalling the read loop.
func (s *Service) publish(sample domain.PriceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, sample.Price)
	if len(s.recent) > recentWindow {
		s.recent = s.recent[len(s.recent)-recentWindow:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- sample:
		default:
		}
	}
}

func (s *Service) waitBackoff(ctx context.Context) {
	jitter := 1 + jitterPercent*(2*rand.Float64()-1)
	wait := time.Duration(float64(s.backoff) * jitter)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	case <-s.stopCh:
	}

	s.backoff = time.Duration(float64(s.backoff) * backoffFactor)
	if s.backoff > maxBackoff {
		s.backoff = maxBackoff
	}
}
