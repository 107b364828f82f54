package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Vinmsh25/skillbarter/internal/auth"
	"github.com/Vinmsh25/skillbarter/internal/bus"
	"github.com/Vinmsh25/skillbarter/internal/config"
	"github.com/Vinmsh25/skillbarter/pkg/interfaces"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is deferred to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler accepts chat connections for a session. The gate attaches an
// identity (anonymous when the credential is absent or invalid); the
// membership guard then closes anyone who is not one of the session's two
// participants with the policy violation code before any group join.
type Handler struct {
	gate    *auth.Gate
	engine  interfaces.SessionEngine
	store   interfaces.Store
	groups  interfaces.GroupBus
	cfg     *config.WebSocketConfig
	limiter *RateLimiter
}

// NewHandler creates a chat connection handler.
func NewHandler(gate *auth.Gate, engine interfaces.SessionEngine, store interfaces.Store,
	groups interfaces.GroupBus, cfg *config.WebSocketConfig, limiter *RateLimiter) *Handler {
	return &Handler{
		gate:    gate,
		engine:  engine,
		store:   store,
		groups:  groups,
		cfg:     cfg,
		limiter: limiter,
	}
}

// HandleChat serves GET /ws/chat/{session_id}.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	if sessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}

	identity, subprotocol := h.gate.IdentityFromRequest(r)

	// Echo the credential subprotocol so clients that offered one complete
	// their handshake.
	var responseHeader http.Header
	if subprotocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{subprotocol}}
	}

	ws, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws, identity, sessionID, h.cfg.BufferSize, h.cfg.WriteTimeout)

	if identity.Anonymous() {
		_ = conn.CloseWithCode(PolicyViolationCloseCode, "not a session participant")
		return
	}

	session, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil || !session.HasParticipant(identity.ID) {
		_ = conn.CloseWithCode(PolicyViolationCloseCode, "not a session participant")
		return
	}

	display := h.displayIdentity(r, identity)
	groupKey := bus.ChatGroupKey(sessionID)

	h.groups.Join(groupKey, conn)
	h.groups.Broadcast(groupKey, types.NewUserJoined(display))
	log.Printf("Chat joined: session=%s user=%s", sessionID, display.ID)

	go h.readLoop(conn, groupKey, display)
}

// displayIdentity resolves the name shown to the other participant,
// preferring the stored account name over the token claim.
func (h *Handler) displayIdentity(r *http.Request, identity types.Identity) types.Identity {
	user, err := h.store.GetUser(r.Context(), identity.ID)
	if err == nil && user.Name != "" {
		identity.Name = user.Name
	}
	return identity
}

// readLoop pumps inbound events until the connection drops, then leaves the
// group and announces the departure. Rejected and malformed events are
// dropped silently.
func (h *Handler) readLoop(conn *Connection, groupKey string, display types.Identity) {
	defer func() {
		h.groups.Leave(groupKey, conn)
		h.groups.Broadcast(groupKey, types.NewUserLeft(display))
		h.limiter.Forget(display.ID)
		_ = conn.Close()
		log.Printf("Chat left: user=%s", display.ID)
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event types.InboundEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		if !h.limiter.Allow(display.ID) {
			continue
		}

		switch event.Type {
		case types.EventChatMessage:
			message := strings.TrimSpace(event.Message)
			if message == "" {
				continue
			}
			h.groups.Broadcast(groupKey, types.NewChatMessage(display.Name, message, time.Now()))
		case types.EventTyping:
			h.groups.Broadcast(groupKey, types.NewTyping(display, event.IsTyping))
		default:
			// Unknown inbound types are dropped, never dispatched.
		}
	}
}
