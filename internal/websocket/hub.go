package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// PresenceChannel is the Redis pub/sub channel carrying live status changes
// from the ingest path to connected dashboards.
const PresenceChannel = "presence_updates"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans presence updates out to admin dashboard connections. Unlike a
// per-user notification hub there is a single shared feed: every admin
// socket receives every update, so the hub keeps one Redis subscription
// for its whole lifetime.
type Hub struct {
	mu          sync.RWMutex
	conns       map[*websocket.Conn]struct{}
	redisClient *redis.Client
	jwtSecret   []byte
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		conns:       make(map[*websocket.Conn]struct{}),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
	}
}

// Run subscribes to the presence channel and broadcasts until ctx is done.
// Call it once from main in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.redisClient.Subscribe(ctx, PresenceChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload))
		}
	}
}

// HandleWebSocket upgrades an admin dashboard connection. Browsers cannot
// set an Authorization header on the upgrade request, so the access token
// rides in a query param instead.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if role, _ := claims["role"].(string); role != "ADMIN" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.register(conn)

	go func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	log.Printf("WebSocket connected (total: %d)", len(h.conns))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.conns, conn)
	log.Printf("WebSocket disconnected (total: %d)", len(h.conns))
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.conns {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}
