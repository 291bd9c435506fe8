package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	writeWait   = 5 * time.Second
	clientQueue = 16 // 每个客户端的待发送队列长度，满了就断开
)

// Message 推给前端的事件
type Message struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// Hub 把事件广播给所有 websocket 客户端，实现 scanner.Notifier。
// 没有客户端时事件直接丢弃。
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// 前端跑在 webview 里，origin 不固定
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Emit(event, payload string) error {
	data, err := json.Marshal(Message{Event: event, Payload: payload})
	if err != nil {
		return errors.WithStack(err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("event hub closed")
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Printf("dropping slow client %s\n", c.conn.RemoteAddr())
			h.remove(c)
		}
	}
	return nil
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// 调用方需持有锁
func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v\n", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientQueue)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("client %s connected\n", conn.RemoteAddr())

	go h.writePump(c)
	h.readPump(c)
}

// 只用来感知断开，前端不通过 websocket 发命令
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.remove(c)
		h.mu.Unlock()
		log.Printf("client %s disconnected\n", c.conn.RemoteAddr())
	}()
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close 断开所有客户端，之后 Emit 返回错误
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.remove(c)
	}
}
