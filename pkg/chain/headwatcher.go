package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Head is the part of a newHeads notification the monitor cares about.
type Head struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

// HeadWatcher keeps an eth_subscribe("newHeads") subscription open over a
// WebSocket and hands every new head to its handler.
type HeadWatcher struct {
	url            string
	reconnectDelay time.Duration
	logger         *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subID   string
	handler func(Head)
}

// NewHeadWatcher creates a watcher for the given ws:// or wss:// URL.
func NewHeadWatcher(url string, logger *zap.Logger) *HeadWatcher {
	return &HeadWatcher{
		url:            url,
		reconnectDelay: 3 * time.Second,
		logger:         logger,
	}
}

// SetHeadHandler sets the function called for each new head.
func (w *HeadWatcher) SetHeadHandler(h func(Head)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = h
}

// SubscriptionID returns the id the node assigned to the current subscription.
func (w *HeadWatcher) SubscriptionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.subID
}

// Connect dials the node and sends the subscription request. It does not
// start the listener.
func (w *HeadWatcher) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		w.logger.Error("failed to connect to websocket", zap.String("url", w.url), zap.Error(err))
		return err
	}
	w.logger.Info("websocket connected", zap.String("url", w.url))

	if err := subscribeNewHeads(conn); err != nil {
		_ = conn.Close()
		w.logger.Error("failed to send subscription", zap.Error(err))
		return err
	}

	w.mu.Lock()
	old := w.conn
	w.conn = conn
	w.subID = ""
	w.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Listen reads notifications until ctx is done, reconnecting and
// resubscribing whenever the connection drops.
func (w *HeadWatcher) Listen(ctx context.Context) {
	stop := context.AfterFunc(ctx, w.close)
	defer stop()

	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			if !w.reconnect(ctx) {
				return
			}
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("websocket read error", zap.Error(err))
			if !w.reconnect(ctx) {
				return
			}
			continue
		}

		w.handleMessage(msg)
	}
}

// reconnect retries Connect until it succeeds or ctx is done.
func (w *HeadWatcher) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.reconnectDelay):
		}
		if err := w.Connect(ctx); err != nil {
			w.logger.Warn("retrying reconnect...")
			continue
		}
		// ctx may have ended while dialing, after Listen's close already ran
		if ctx.Err() != nil {
			w.close()
			return false
		}
		w.logger.Info("reconnected successfully")
		return true
	}
}

func (w *HeadWatcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
}

func (w *HeadWatcher) handleMessage(msg []byte) {
	// subscription acknowledgement: {"id":1,"result":"0x..."}
	if id := gjson.GetBytes(msg, "id"); id.Exists() {
		if e := gjson.GetBytes(msg, "error.message"); e.Exists() {
			w.logger.Error("newHeads subscription rejected", zap.String("error", e.String()))
			return
		}
		w.mu.Lock()
		w.subID = gjson.GetBytes(msg, "result").String()
		w.mu.Unlock()
		w.logger.Debug("newHeads subscribed", zap.String("subscription", w.SubscriptionID()))
		return
	}

	if gjson.GetBytes(msg, "method").String() != "eth_subscription" {
		return
	}
	head, err := parseHead(gjson.GetBytes(msg, "params.result"))
	if err != nil {
		w.logger.Warn("failed to parse head", zap.Error(err))
		return
	}

	w.mu.Lock()
	h := w.handler
	w.mu.Unlock()
	if h != nil {
		h(head)
	}
}

func parseHead(res gjson.Result) (Head, error) {
	number, err := hexutil.DecodeUint64(res.Get("number").String())
	if err != nil {
		return Head{}, fmt.Errorf("head number: %w", err)
	}
	head := Head{
		Number: number,
		Hash:   common.HexToHash(res.Get("hash").String()),
	}
	if ts := res.Get("timestamp"); ts.Exists() {
		if head.Timestamp, err = hexutil.DecodeUint64(ts.String()); err != nil {
			return Head{}, fmt.Errorf("head timestamp: %w", err)
		}
	}
	return head, nil
}

func subscribeNewHeads(conn *websocket.Conn) error {
	subMsg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []string{"newHeads"},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}
	return nil
}
