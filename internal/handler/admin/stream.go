package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

type nopStreams struct{}

func (nopStreams) StreamOpened() {}
func (nopStreams) StreamClosed() {}

// streamHandler 通过 WebSocket 推送审计事件
type streamHandler struct {
	feed     Feed
	streams  StreamObserver
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func newStreamHandler(feed Feed, streams StreamObserver, allowedOrigins []string, logger logging.Logger) *streamHandler {
	if streams == nil {
		streams = nopStreams{}
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return &streamHandler{
		feed:    feed,
		streams: streams,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// 非浏览器客户端不带 Origin
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

func (s *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 先订阅再升级，握手完成后的事件不会丢
	events, cancel := s.feed.Subscribe()
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("audit stream upgrade failed")
		return
	}
	defer conn.Close()

	principal, _ := auth.PrincipalFrom(r.Context())
	log := s.logger.WithField("user_id", principal.UserID)

	s.streams.StreamOpened()
	defer s.streams.StreamClosed()
	log.Info("audit stream opened")
	defer log.Info("audit stream closed")

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	// 读循环只用于感知断开与处理 pong
	go func() {
		defer stop()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("audit stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
