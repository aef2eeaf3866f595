package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/franckalain/labelverdict/internal/models"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// WSBackend sends analyses over a single /ws connection, one at a time.
// The connection is dialed lazily and redialed after a failure.
type WSBackend struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWSBackend targets the server at baseURL (http or ws scheme)
func NewWSBackend(baseURL string) (*WSBackend, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return &WSBackend{url: u.String(), dialer: websocket.DefaultDialer}, nil
}

func (b *WSBackend) connect(ctx context.Context) (*websocket.Conn, error) {
	if b.conn != nil {
		return b.conn, nil
	}
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	return conn, nil
}

func (b *WSBackend) drop() {
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

func (b *WSBackend) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, models.NewUpstreamError(fmt.Errorf("dial %s: %w", b.url, err))
	}

	data, err := json.Marshal(newRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(90 * time.Second)
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	// Unblock the read when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(wsMessage{Type: "analyze", Data: data}); err != nil {
		b.drop()
		return nil, models.NewUpstreamError(err)
	}

	var reply wsMessage
	if err := conn.ReadJSON(&reply); err != nil {
		b.drop()
		if ctx.Err() != nil {
			return nil, models.NewUpstreamError(ctx.Err())
		}
		return nil, models.NewUpstreamError(err)
	}

	switch reply.Type {
	case "analysis":
		var result models.AnalysisResult
		if err := json.Unmarshal(reply.Data, &result); err != nil {
			return nil, models.NewFormatError("server returned an unreadable analysis: " + err.Error())
		}
		return &result, nil
	case "error":
		return nil, models.ErrorFromCode(reply.Code, reply.Message)
	default:
		return nil, models.NewFormatError("unexpected message type " + reply.Type)
	}
}

// Close closes the connection. Later calls to Analyze fail with ErrClosed.
func (b *WSBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.conn == nil {
		return nil
	}
	b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := b.conn.Close()
	b.conn = nil
	return err
}
