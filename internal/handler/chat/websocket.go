package chat

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/middleware"
	chatmodel "github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
	chatservice "github.com/mindease/companion/backend/internal/service/chat"
	"github.com/mindease/companion/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// 入站消息类型
const (
	inboundMessage = "message"
	inboundStart   = "start"
	inboundResume  = "resume"
)

// 出站消息类型
const (
	outboundSession = "session"
	outboundTurn    = "turn"
	outboundNotice  = "notice"
	outboundError   = "error"
)

type inboundFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type outgoingFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// wsConnection 保存一条连接的状态；写操作串行化，提交在独立 goroutine 中进行。
type wsConnection struct {
	conn   *websocket.Conn
	owner  identity.Identity
	logger *zap.Logger

	writeMu sync.Mutex

	convMu  sync.Mutex
	conv    *chatservice.Conversation
	started []*chatservice.Conversation

	wg sync.WaitGroup
}

func (c *wsConnection) current() *chatservice.Conversation {
	c.convMu.Lock()
	defer c.convMu.Unlock()
	return c.conv
}

func (c *wsConnection) attach(conv *chatservice.Conversation) {
	c.convMu.Lock()
	c.conv = conv
	c.convMu.Unlock()
}

// own 记录由本连接创建的对话，连接关闭时一并移出注册表。
func (c *wsConnection) own(conv *chatservice.Conversation) {
	c.convMu.Lock()
	c.started = append(c.started, conv)
	c.convMu.Unlock()
}

func (c *wsConnection) forgetOwned(registry *chatservice.Registry) {
	c.convMu.Lock()
	owned := c.started
	c.started = nil
	c.convMu.Unlock()

	for _, conv := range owned {
		registry.Forget(conv)
	}
}

func (c *wsConnection) send(kind string, data any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	frame := outgoingFrame{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()}
	if err := c.conn.WriteJSON(frame); err != nil {
		c.logger.Debug("websocket write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (c *wsConnection) sendError(err error) {
	status := utils.StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	c.send(outboundError, errorPayload{Message: message, Status: status})
}

// handleWebSocket 处理聊天WebSocket连接；?key= 可接回已有对话，否则开启新对话。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner := identity.FromContext(r.Context())
	registry := h.orchestrator.Registry()

	var (
		conv    *chatservice.Conversation
		started bool
	)
	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		existing, err := registry.Get(owner, key)
		if err != nil {
			utils.RespondErr(w, err)
			return
		}
		conv = existing
	} else {
		conv = registry.Start(owner)
		started = true
	}

	// 升级响应不会带上 w.Header()，签发的访客键需要单独传递。
	var header http.Header
	if guest := w.Header().Get(middleware.GuestKeyHeader); guest != "" {
		header = http.Header{middleware.GuestKeyHeader: []string{guest}}
	}
	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		if started {
			registry.Forget(conv)
		}
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsConnection{conn: conn, owner: owner, conv: conv, logger: h.logger}
	if started {
		c.own(conv)
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer conn.Close()
	defer c.forgetOwned(registry)
	defer c.wg.Wait()
	defer cancel()

	h.logger.Debug("websocket connected", zap.String("owner", owner.ID), zap.String("conversation", conv.Key()))

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pingLoop(ctx)
	}()

	c.send(outboundSession, conv.Snapshot())

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleFrame(ctx, c, frame)
	}
}

func (h *Handler) handleFrame(ctx context.Context, c *wsConnection, frame inboundFrame) {
	switch frame.Type {
	case inboundMessage:
		conv := c.current()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			h.submit(ctx, c, conv, frame.Content)
		}()
	case inboundStart:
		conv := h.orchestrator.Registry().Start(c.owner)
		c.own(conv)
		c.attach(conv)
		c.send(outboundSession, conv.Snapshot())
	case inboundResume:
		conv, err := h.orchestrator.Resume(ctx, c.owner, frame.SessionID)
		if err != nil {
			c.sendError(err)
			return
		}
		c.attach(conv)
		c.send(outboundSession, conv.Snapshot())
	default:
		c.send(outboundError, errorPayload{Message: "unsupported message type: " + frame.Type, Status: http.StatusBadRequest})
	}
}

func (h *Handler) submit(ctx context.Context, c *wsConnection, conv *chatservice.Conversation, content string) {
	result, err := h.orchestrator.Submit(ctx, conv, content,
		chatservice.WithTurnObserver(func(turn chatmodel.Turn) {
			c.send(outboundTurn, turn)
		}))
	if err != nil {
		c.sendError(err)
		return
	}

	for _, notice := range result.Notices {
		c.send(outboundNotice, notice)
	}
	if result.Opening {
		c.send(outboundSession, conv.Snapshot())
	}
}

// pingLoop 定期发送ping消息
func (c *wsConnection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
