package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mzollin/CocktailMixer/internal/kiosk"
	"go.uber.org/zap"
)

// IntentSubmitter 接收显示层意图
type IntentSubmitter interface {
	Submit(ctx context.Context, intent kiosk.Intent) error
}

// Options Hub参数
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	IntentTimeout   time.Duration
}

func (o *Options) normalize() {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 1024
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = 1024
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	// ping周期必须小于pong超时
	if o.PingInterval <= 0 || o.PingInterval >= o.PongTimeout {
		o.PingInterval = o.PongTimeout * 9 / 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.IntentTimeout <= 0 {
		o.IntentTimeout = 5 * time.Second
	}
}

// Hub WebSocket连接管理中心
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 最近一次状态推送，新连接立即下发
	lastState   []byte
	lastStateMu sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader websocket.Upgrader
	intents  IntentSubmitter
	opts     Options
	logger   *zap.Logger
}

// NewHub 创建Hub
func NewHub(intents IntentSubmitter, opts Options, logger *zap.Logger) *Hub {
	opts.normalize()
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // 本机显示层
			},
		},
		intents: intents,
		opts:    opts,
		logger:  logger,
	}
}

// Run 运行Hub，ctx结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.clientsMu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.clientsMu.Unlock()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case data := <-h.broadcast:
			h.broadcastMessage(data)
		}
	}
}

// ServeWS 升级HTTP连接
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	client := newClient(h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接", zap.String("client_id", client.ID))

	h.lastStateMu.RLock()
	state := h.lastState
	h.lastStateMu.RUnlock()
	if state != nil {
		client.trySend(state)
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开", zap.String("client_id", client.ID))
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(data []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		if !client.trySend(data) {
			h.logger.Warn("客户端发送缓冲区满", zap.String("client_id", client.ID))
		}
	}
}

// Broadcast 广播消息，Hub停止后丢弃
func (h *Hub) Broadcast(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
	return nil
}

// broadcastState 推送状态并缓存
func (h *Hub) broadcastState(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.lastStateMu.Lock()
	h.lastState = data
	h.lastStateMu.Unlock()

	select {
	case h.broadcast <- data:
	case <-h.done:
	}
	return nil
}

// sendToClient 发送消息给指定客户端
func (h *Hub) sendToClient(client *Client, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return ErrClientNotFound
	}
	if !client.trySend(data) {
		return ErrSendBufferFull
	}
	return nil
}

// OnlineCount 在线连接数
func (h *Hub) OnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// SubmitFunc 函数适配IntentSubmitter
type SubmitFunc func(ctx context.Context, intent kiosk.Intent) error

// Submit 调用f
func (f SubmitFunc) Submit(ctx context.Context, intent kiosk.Intent) error {
	return f(ctx, intent)
}
