package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/kiosk"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
)

// 消息类型
const (
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
	MessageTypeKioskState   = "kiosk_state"
	MessageTypeIntent       = "intent"
	MessageTypeIntentResult = "intent_result"
)

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"` // 客户端请求ID，原样返回
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// IntentResult 意图处理结果
type IntentResult struct {
	OK    bool                `json:"ok"`
	Code  apperrors.ErrorCode `json:"code,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Client WebSocket客户端
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
}

// trySend 非阻塞写入发送队列，调用方持有clientsMu
func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump 读取消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeTimeout := c.hub.opts.WriteTimeout
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Warn("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError("", "消息格式错误")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.reply(MessageTypePong, msg.ID, nil)

	case MessageTypePong:

	case MessageTypeIntent:
		c.handleIntent(msg)

	default:
		c.hub.logger.Debug("不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError(msg.ID, "不支持的消息类型: "+msg.Type)
	}
}

// handleIntent 提交意图并返回结果
func (c *Client) handleIntent(msg Message) {
	var intent kiosk.Intent
	if err := json.Unmarshal(msg.Data, &intent); err != nil || intent.Type == "" {
		c.reply(MessageTypeIntentResult, msg.ID, IntentResult{
			Code:  apperrors.ErrInvalidParam,
			Error: "无效的意图",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.hub.opts.IntentTimeout)
	defer cancel()

	result := IntentResult{OK: true}
	if err := c.hub.intents.Submit(ctx, intent); err != nil {
		result = IntentResult{Code: apperrors.GetCode(err), Error: err.Error()}
	}
	c.reply(MessageTypeIntentResult, msg.ID, result)
}

func (c *Client) reply(msgType, id string, payload interface{}) {
	msg := &Message{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.hub.logger.Error("序列化消息失败", zap.Error(err))
			return
		}
		msg.Data = data
	}
	if err := c.hub.sendToClient(c, msg); err != nil {
		c.hub.logger.Debug("发送消息失败", zap.String("client_id", c.ID), zap.Error(err))
	}
}

// sendError 发送错误消息
func (c *Client) sendError(id, message string) {
	c.reply(MessageTypeError, id, map[string]string{"error": message})
}
