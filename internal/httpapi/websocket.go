package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"duckweb/internal/backtest"
	"duckweb/internal/dashboard"
	"duckweb/internal/strategy"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream message types.
const (
	MsgRow   = "row"
	MsgDone  = "done"
	MsgError = "error"
)

// StreamMessage is one websocket frame of /ws/backtest.
type StreamMessage struct {
	Type      string                `json:"type"`
	Indicator string                `json:"indicator,omitempty"`
	Index     int                   `json:"index"`
	Row       *dashboard.SummaryRow `json:"row,omitempty"`
	Result    *BacktestJSON         `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// streamConn serialises writes; gorilla connections allow one writer.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) send(msg StreamMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// handleBacktestStream runs a backtest and streams one summary row per
// finished risk-reward run, in completion order, then the full result.
func (s *Server) handleBacktestStream(w http.ResponseWriter, r *http.Request) {
	p, err := ParseQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := p.Request(s.defaults)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: the client closing the socket cancels the run.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sc := &streamConn{conn: conn}
	req.OnRun = func(i int, cfg strategy.Config, run backtest.Run) {
		row := dashboard.NewSummaryRow(run)
		if err := sc.send(StreamMessage{Type: MsgRow, Indicator: cfg.Label(), Index: i, Row: &row}); err != nil {
			cancel()
		}
	}

	report, err := s.bt.Run(ctx, req)
	final := StreamMessage{Type: MsgError}
	if err != nil {
		final.Error = err.Error()
		s.log.Info("backtest stream failed", "error", err)
	} else {
		resp := BuildResponse(report, p)
		final = StreamMessage{Type: MsgDone, Result: &resp}
	}
	s.sendFinal(sc, final)

	sc.mu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	sc.mu.Unlock()
}

// sendFinal writes the closing done or error frame. A failed write is logged;
// the client is gone and nothing else can be reported.
func (s *Server) sendFinal(sc *streamConn, msg StreamMessage) {
	if err := sc.send(msg); err != nil {
		s.log.Warn("websocket send", "type", msg.Type, "error", err)
	}
}
