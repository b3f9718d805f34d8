// Package server WebSocket 事件网关
//
// 事件网关提供任务进度的实时推送，前端借此展示状态流转、
// 截图就绪、最终提交结果。
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gov-submit-admin/internal/shared/eventbus"
	"gov-submit-admin/internal/shared/storage"
)

// upgrader WebSocket 升级器配置
//
// CheckOrigin 当前允许所有来源，生产环境应限制。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventGateway WebSocket 事件网关
//
// 事件网关负责：
//   - 管理 WebSocket 连接
//   - 通过事件总线（Redis Streams）接收实时事件
//   - 事件总线缺席时降级轮询任务记录
//   - 任务到达终态时通知并关闭
type EventGateway struct {
	store   storage.TaskStore                   // 任务存储（轮询降级用）
	bus     eventbus.TaskEventBus               // 事件总线
	metrics *Metrics                            // 指标（可空）
	clients map[string]map[*websocket.Conn]bool // 按 TaskID 索引的客户端连接
	mu      sync.RWMutex                        // 保护 clients 映射
}

// NewEventGateway 创建事件网关实例
func NewEventGateway(store storage.TaskStore, bus eventbus.TaskEventBus) *EventGateway {
	return &EventGateway{
		store:   store,
		bus:     bus,
		clients: make(map[string]map[*websocket.Conn]bool),
	}
}

// wsMessage 推送消息格式
//
//	事件消息：{"type": "event", "data": {...}}
//	状态消息：{"type": "status", "data": {"status": "submitted"}}
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/tasks/{id}/events
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *EventGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		http.Error(w, "task_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	g.addClient(taskID, conn)
	defer g.removeClient(taskID, conn)

	log.Printf("WebSocket client connected for task %s", taskID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.readPump(conn, cancel)

	// 优先事件总线订阅，缺席时降级轮询
	if g.bus != nil {
		if g.writePumpEventBus(ctx, conn, taskID) {
			return
		}
	}
	g.writePumpPolling(ctx, conn, taskID)
}

// addClient 添加客户端连接
func (g *EventGateway) addClient(taskID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.clients[taskID] == nil {
		g.clients[taskID] = make(map[*websocket.Conn]bool)
	}
	g.clients[taskID][conn] = true
	if g.metrics != nil {
		g.metrics.WSConnectionOpened()
	}
}

// removeClient 移除客户端连接
func (g *EventGateway) removeClient(taskID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if clients, ok := g.clients[taskID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(g.clients, taskID)
		}
		if g.metrics != nil {
			g.metrics.WSConnectionClosed()
		}
	}
}

// readPump 读取客户端消息，处理心跳与连接关闭
func (g *EventGateway) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil {
			if req["type"] == "ping" {
				if g.metrics != nil {
					g.metrics.RecordWSMessage("in", "ping")
				}
				g.send(conn, wsMessage{Type: "pong"})
			}
		}
	}
}

// send 推送消息并计数
func (g *EventGateway) send(conn *websocket.Conn, msg wsMessage) error {
	if g.metrics != nil {
		g.metrics.RecordWSMessage("out", msg.Type)
	}
	return conn.WriteJSON(msg)
}

// writePumpEventBus 通过事件总线推送事件
//
// 先补发历史事件（断线重连场景），再订阅后续事件。
// 返回 false 表示订阅失败，调用方应降级轮询。
func (g *EventGateway) writePumpEventBus(ctx context.Context, conn *websocket.Conn, taskID string) bool {
	history, err := g.bus.GetTaskEvents(ctx, taskID, "", 100)
	if err == nil {
		for _, ev := range history {
			if g.send(conn, wsMessage{Type: "event", Data: ev}) != nil {
				return true
			}
		}
	}

	events, err := g.bus.SubscribeTaskEvents(ctx, taskID)
	if err != nil {
		log.Printf("event subscribe failed for task %s, falling back to polling: %v", taskID, err)
		return false
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-pingTicker.C:
			if conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)) != nil {
				return true
			}
		case ev, ok := <-events:
			if !ok {
				return true
			}
			if g.send(conn, wsMessage{Type: "event", Data: ev}) != nil {
				return true
			}
			if ev.Type == eventbus.EventTaskSubmitted || ev.Type == eventbus.EventTaskFailed {
				g.sendFinalStatus(ctx, conn, taskID)
				return true
			}
		}
	}
}

// writePumpPolling 轮询任务记录推送状态变化（降级方案）
func (g *EventGateway) writePumpPolling(ctx context.Context, conn *websocket.Conn, taskID string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	var lastStatus string
	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)) != nil {
				return
			}
		case <-ticker.C:
			task, err := g.store.GetTask(ctx, taskID)
			if err != nil {
				continue
			}
			if string(task.Status) != lastStatus {
				lastStatus = string(task.Status)
				msg := wsMessage{Type: "status", Data: map[string]string{
					"status":         lastStatus,
					"screenshot_ref": task.ScreenshotRef,
				}}
				if g.send(conn, msg) != nil {
					return
				}
			}
			if task.IsTerminal() {
				return
			}
		}
	}
}

// sendFinalStatus 终态通知
func (g *EventGateway) sendFinalStatus(ctx context.Context, conn *websocket.Conn, taskID string) {
	task, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return
	}
	g.send(conn, wsMessage{Type: "status", Data: map[string]string{
		"status":         string(task.Status),
		"screenshot_ref": task.ScreenshotRef,
	}})
}
