/**
 * internal/handlers/livereload.go
 * 预览自动刷新 WebSocket
 *
 * 功能：
 * - GET /__preview/ws 升级为 WebSocket，加入广播列表
 * - 每次自动构建完成后广播事件：成功为 reload，失败为 build-error
 * - GET /__preview/livereload.js 返回连接脚本（页面中手动引入）
 * - 连接数限制、Ping/Pong 心跳、优雅关闭
 *
 * 依赖：
 * - github.com/gorilla/websocket
 */

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"sitebuild/internal/utils"
	"sitebuild/internal/watch"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ====================  错误定义 ====================

var (
	// ErrLiveReloadShutdown 服务已关闭
	ErrLiveReloadShutdown = errors.New("LIVE_RELOAD_SHUTDOWN")
)

// ====================  常量定义 ====================

const (
	// maxReloadClients 最大连接数（每个打开的预览标签页一个）
	maxReloadClients = 64

	// 心跳与超时
	reloadWriteWait  = 5 * time.Second
	reloadPongWait   = 60 * time.Second
	reloadPingPeriod = 30 * time.Second

	// reloadSendBuffer 每个连接的待发送消息数
	reloadSendBuffer = 8

	// EventReload 构建成功
	EventReload = "reload"
	// EventBuildError 构建失败
	EventBuildError = "build-error"
)

// reloadScript 页面端脚本：收到 reload 刷新页面，build-error 打印到控制台，断开后重连
const reloadScript = `(function () {
  var url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/__preview/ws";
  function connect() {
    var ws = new WebSocket(url);
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "reload") location.reload();
      else if (msg.type === "build-error") console.error("[preview] build failed:", msg.error);
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`

var reloadUpgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	// 本地预览服务，不检查 Origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ====================  数据结构 ====================

// ReloadEvent 推送给页面的事件
type ReloadEvent struct {
	Type   string `json:"type"`
	Builds int    `json:"builds"`
	Error  string `json:"error,omitempty"`
}

type reloadClient struct {
	conn   *websocket.Conn
	send   chan []byte
	closed bool
}

// LiveReload 自动刷新广播
type LiveReload struct {
	mu       sync.Mutex
	clients  map[*reloadClient]struct{}
	shutdown bool
}

// NewLiveReload 创建自动刷新广播
func NewLiveReload() *LiveReload {
	return &LiveReload{clients: make(map[*reloadClient]struct{})}
}

// ====================  Handler ====================

// Handle 处理 WebSocket 连接
// GET /__preview/ws
func (l *LiveReload) Handle(c *gin.Context) {
	l.mu.Lock()
	shutdown, full := l.shutdown, len(l.clients) >= maxReloadClients
	l.mu.Unlock()
	if shutdown {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	if full {
		utils.LogPrintf("[LIVERELOAD] WARN: Max connections reached (%d)", maxReloadClients)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
		return
	}

	conn, err := reloadUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.LogPrintf("[LIVERELOAD] ERROR: Upgrade failed: %v", err)
		return
	}

	client := &reloadClient{conn: conn, send: make(chan []byte, reloadSendBuffer)}
	if err := l.register(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		_ = conn.Close()
		return
	}

	go l.writePump(client)
	go l.readPump(client)
}

// Script 返回页面端脚本
// GET /__preview/livereload.js
func (l *LiveReload) Script(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/javascript; charset=utf-8", []byte(reloadScript))
}

// ====================  广播 ====================

// Notify 根据构建状态广播事件
func (l *LiveReload) Notify(st watch.Status) {
	ev := ReloadEvent{Type: EventReload, Builds: st.Builds}
	if st.LastError != "" {
		ev.Type = EventBuildError
		ev.Error = st.LastError
	}
	l.Broadcast(ev)
}

// Broadcast 发送事件到所有连接
// 发送缓冲区已满的连接视为失效并断开
func (l *LiveReload) Broadcast(ev ReloadEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		utils.LogPrintf("[LIVERELOAD] ERROR: Failed to marshal event: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for client := range l.clients {
		select {
		case client.send <- data:
		default:
			l.removeLocked(client)
		}
	}
}

// Count 当前连接数
func (l *LiveReload) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Shutdown 关闭所有连接，之后的连接请求返回 503
func (l *LiveReload) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdown {
		return
	}
	l.shutdown = true
	for client := range l.clients {
		l.removeLocked(client)
	}
	utils.LogPrintf("[LIVERELOAD] Shutdown complete")
}

// ====================  连接管理 ====================

func (l *LiveReload) register(client *reloadClient) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdown {
		return ErrLiveReloadShutdown
	}
	l.clients[client] = struct{}{}
	return nil
}

func (l *LiveReload) unregister(client *reloadClient) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(client)
}

// removeLocked 移除连接并关闭发送通道（writePump 随后发送关闭帧）
// 调用方持有 l.mu
func (l *LiveReload) removeLocked(client *reloadClient) {
	if client.closed {
		return
	}
	client.closed = true
	delete(l.clients, client)
	close(client.send)
}

// writePump 写入协程
func (l *LiveReload) writePump(client *reloadClient) {
	ticker := time.NewTicker(reloadPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(reloadWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				l.unregister(client)
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(reloadWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.unregister(client)
				return
			}
		}
	}
}

// readPump 读取协程：丢弃页面发来的消息，只处理 Pong 和断开
func (l *LiveReload) readPump(client *reloadClient) {
	defer l.unregister(client)

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(reloadPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(reloadPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
