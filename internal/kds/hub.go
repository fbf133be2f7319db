package kds

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"coffee_pos/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // KDS 屏幕跑在店内局域网，来源校验交给前置网关
	},
}

// client 是一块在线的厨房显示屏连接。
type client struct {
	conn       *websocket.Conn
	send       chan []byte
	businessID string
}

// Hub 把已提交订单事件实时推给对应租户的厨房显示屏。
// 推送只是加速手段：KDS 仍以 /api/kds/orders 轮询为兜底，掉线不丢单。
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[*client]struct{}{}}
}

// Broadcast 向该租户的所有在线屏幕推送事件。慢客户端直接断开，不阻塞别人。
func (h *Hub) Broadcast(ev events.OrderEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("kds: marshal event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.businessID != ev.BusinessID {
			continue
		}
		select {
		case c.send <- b:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// HandleWS 升级连接并挂进 Hub。租户从 query 或会话头取。
func (h *Hub) HandleWS(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		businessID = c.GetHeader("X-Business-ID")
	}
	if businessID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "business_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("kds: upgrade: %v", err)
		return
	}

	cl := &client{
		conn:       conn,
		send:       make(chan []byte, 64),
		businessID: businessID,
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go cl.writePump()
	cl.readPump(h)
}

// readPump 只负责探测断连：KDS 不上行业务消息。
func (c *client) readPump(h *Hub) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("kds: read: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
