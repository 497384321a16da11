// Package pin delivers issuer transaction-code prompts to the holder's
// device over a WebSocket channel and waits for the typed code.
package pin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrUserNotConnected = errors.New("user not connected")
	ErrFailedToReceive  = errors.New("failed to receive pin")
	ErrTimeout          = errors.New("pin request timed out")
)

const pinResponseTimeout = 30 * time.Second

// ServerMessage is sent from the hub to the client.
type ServerMessage struct {
	MessageID string `json:"message_id,omitempty"`
	Type      string `json:"type,omitempty"` // control messages like FIN_INIT
	Prompt    string `json:"prompt,omitempty"`
}

// ClientMessage is received from the client.
type ClientMessage struct {
	MessageID string `json:"message_id,omitempty"`
	AppToken  string `json:"appToken,omitempty"` // handshake
	Pin       string `json:"pin,omitempty"`
}

// pendingRequest tracks an outstanding pin prompt
type pendingRequest struct {
	messageID string
	pinCh     chan string
	errorCh   chan error
}

// clientConnection represents a connected holder device
type clientConnection struct {
	conn           *websocket.Conn
	userID         string
	pendingMu      sync.Mutex
	pendingRequest *pendingRequest
}

// Hub handles the WebSocket connections of holder devices and the pin
// prompts the pre-authorized flow sends through them.
type Hub struct {
	secret   string
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*clientConnection // userID -> connection
}

// NewHub creates a pin hub validating handshakes against secret.
func NewHub(secret string, logger *zap.Logger) *Hub {
	return &Hub{
		secret: secret,
		logger: logger.Named("pin-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*clientConnection),
	}
}

// HandleConnection upgrades a new WebSocket connection and starts its
// read loop.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	h.logger.Info("WebSocket client connected")

	go h.handleClient(conn)
}

func (h *Hub) handleClient(conn *websocket.Conn) {
	defer conn.Close()

	var client *clientConnection

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Error("Failed to parse message", zap.Error(err))
			continue
		}

		// Handle handshake
		if msg.AppToken != "" {
			userID, err := h.validateToken(msg.AppToken)
			if err != nil {
				h.logger.Error("Handshake failed - invalid token", zap.Error(err))
				conn.WriteJSON(ServerMessage{Type: "ERROR", MessageID: "auth_failed"})
				continue
			}

			client = &clientConnection{
				conn:   conn,
				userID: userID,
			}

			h.clientsMu.Lock()
			// Close any existing connection for this user
			if existing, ok := h.clients[userID]; ok {
				existing.conn.Close()
			}
			h.clients[userID] = client
			h.clientsMu.Unlock()

			h.logger.Info("WebSocket handshake established", zap.String("user_id", userID))
			conn.WriteJSON(ServerMessage{Type: "FIN_INIT"})
			continue
		}

		// Handle pin response
		if client != nil && msg.Pin != "" {
			client.pendingMu.Lock()
			if client.pendingRequest != nil && client.pendingRequest.messageID == msg.MessageID {
				client.pendingRequest.pinCh <- msg.Pin
			}
			client.pendingMu.Unlock()
		}
	}

	// Clean up on disconnect
	if client != nil {
		h.clientsMu.Lock()
		if existing, ok := h.clients[client.userID]; ok && existing == client {
			delete(h.clients, client.userID)
		}
		h.clientsMu.Unlock()
		h.logger.Info("WebSocket client disconnected", zap.String("user_id", client.userID))
	}
}

func (h *Hub) validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.secret), nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", errors.New("invalid token claims")
		}
		return userID, nil
	}

	return "", errors.New("invalid token")
}

// IsConnected checks if a user is currently connected
func (h *Hub) IsConnected(userID string) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// RequestPin prompts the holder's device for the issuer transaction
// code and waits for the answer.
func (h *Hub) RequestPin(ctx context.Context, userID string) (string, error) {
	h.clientsMu.RLock()
	client, ok := h.clients[userID]
	h.clientsMu.RUnlock()

	if !ok {
		return "", ErrUserNotConnected
	}

	messageID := uuid.New().String()
	msg := ServerMessage{
		MessageID: messageID,
		Type:      "PIN_REQUEST",
		Prompt:    "Enter the transaction code provided by the issuer",
	}

	pending := &pendingRequest{
		messageID: messageID,
		pinCh:     make(chan string, 1),
		errorCh:   make(chan error, 1),
	}

	client.pendingMu.Lock()
	client.pendingRequest = pending
	client.pendingMu.Unlock()

	defer func() {
		client.pendingMu.Lock()
		client.pendingRequest = nil
		client.pendingMu.Unlock()
	}()

	if err := client.conn.WriteJSON(msg); err != nil {
		return "", err
	}

	h.logger.Debug("Sent pin request",
		zap.String("user_id", userID),
		zap.String("message_id", messageID),
	)

	timeout := time.After(pinResponseTimeout)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timeout:
		return "", ErrTimeout
	case err := <-pending.errorCh:
		return "", err
	case pin := <-pending.pinCh:
		return pin, nil
	}
}

// Close closes all connections
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for _, client := range h.clients {
		client.conn.Close()
	}
	h.clients = make(map[string]*clientConnection)
}
