package websocket

import (
	"encoding/json"
	"time"

	"github.com/mzollin/CocktailMixer/internal/kiosk"
	"go.uber.org/zap"
)

// HubDisplay 通过WebSocket推送视图
type HubDisplay struct {
	hub *Hub
}

var _ kiosk.Display = (*HubDisplay)(nil)

// NewHubDisplay 创建显示层
func NewHubDisplay(hub *Hub) *HubDisplay {
	return &HubDisplay{hub: hub}
}

// Render 广播kiosk_state
func (d *HubDisplay) Render(view kiosk.View) {
	data, err := json.Marshal(view)
	if err != nil {
		d.hub.logger.Error("序列化视图失败", zap.Error(err))
		return
	}
	msg := &Message{
		Type:      MessageTypeKioskState,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := d.hub.broadcastState(msg); err != nil {
		d.hub.logger.Error("推送视图失败", zap.Error(err))
	}
}
