package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/Raj-Manghani/terminus-prime/internal/display"
	"github.com/Raj-Manghani/terminus-prime/internal/gateway"
	"github.com/Raj-Manghani/terminus-prime/internal/logutil"
	"github.com/Raj-Manghani/terminus-prime/internal/shellbridge"
)

// terminalRateLimit defines the maximum number of input frames allowed per
// second per WebSocket connection. Input beyond this rate is dropped; control
// frames are never limited.
const terminalRateLimit = 200

// terminalRateBurst allows short bursts of rapid input (e.g., paste
// operations) before rate limiting kicks in.
const terminalRateBurst = 200

// MaxInputMessageSize is the maximum size in bytes for a single terminal input
// message. Larger messages are dropped.
const MaxInputMessageSize = 64 * 1024

// MaxResizeCols and MaxResizeRows clamp resize requests.
const (
	MaxResizeCols uint16 = 500
	MaxResizeRows uint16 = 200
)

const terminalWriteTimeout = 10 * time.Second

// Hub and AllowedOrigins are set from main.go.
var (
	Hub            *display.Hub
	AllowedOrigins []string
)

// termClientMsg is a control message from the display. Shell input travels
// as binary frames instead.
type termClientMsg struct {
	Type      string `json:"type"`
	Host      string `json:"host,omitempty"`
	Port      uint16 `json:"port,omitempty"`
	Username  string `json:"username,omitempty"`
	Secret    string `json:"secret,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
	Cols      uint16 `json:"cols,omitempty"`
	Rows      uint16 `json:"rows,omitempty"`
}

type termStatusMsg struct {
	Type    string             `json:"type"`
	Status  shellbridge.Status `json:"status"`
	Message string             `json:"message,omitempty"`
	Attempt uint64             `json:"attempt,omitempty"`
}

// TerminalWS attaches a display to the shell session.
//
// On attach the current status and the session's scrollback are replayed.
// The session outlives the WebSocket: closing it only detaches the display.
// Only one display may be attached at a time.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	att, err := Hub.Attach()
	if errors.Is(err, display.ErrAlreadyAttached) {
		writeError(w, http.StatusConflict, "A display is already attached")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer att.Detach()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: AllowedOrigins,
	})
	if err != nil {
		log.Printf("[ws] failed to accept terminal websocket: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1024 * 1024)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if att.Status != nil {
		if err := writeEvent(ctx, conn, *att.Status); err != nil {
			return
		}
	}
	if len(att.Scrollback) > 0 {
		if err := writeFrame(ctx, conn, websocket.MessageBinary, att.Scrollback); err != nil {
			return
		}
	}

	// Bridge events -> display
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-att.Events():
				if !ok {
					conn.Close(websocket.StatusGoingAway, "Shell bridge stopped")
					return
				}
				if err := writeEvent(ctx, conn, e); err != nil {
					return
				}
			}
		}
	}()

	limiter := rate.NewLimiter(terminalRateLimit, terminalRateBurst)

	// Display -> gateway
	func() {
		defer cancel()
		for {
			msgType, data, err := conn.Read(ctx)
			if err != nil {
				return
			}

			if msgType == websocket.MessageBinary {
				// Rate limit: drop input that exceeds the allowed rate
				if !limiter.Allow() {
					continue
				}
				if len(data) > MaxInputMessageSize {
					log.Printf("[ws] terminal input message too large: size=%d limit=%d", len(data), MaxInputMessageSize)
					continue
				}
				Gateway.Send(data)
				continue
			}

			var msg termClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "connect":
				if err := handleConnect(ctx, conn, msg); err != nil {
					return
				}
			case "resize":
				if msg.Cols == 0 || msg.Rows == 0 {
					continue
				}
				Gateway.Resize(min(msg.Cols, MaxResizeCols), min(msg.Rows, MaxResizeRows))
			case "disconnect":
				Gateway.Disconnect()
			default:
				log.Printf("[ws] unknown message type %q", logutil.SanitizeForLog(msg.Type))
			}
		}
	}()

	conn.Close(websocket.StatusNormalClosure, "")
}

// handleConnect validates the request, reports "connecting" and hands it to
// the gateway. Validation failures are reported as an error status and never
// reach the bridge. The returned error is a WebSocket write failure.
func handleConnect(ctx context.Context, conn *websocket.Conn, msg termClientMsg) error {
	req := gateway.ConnectRequest{Host: msg.Host, Port: msg.Port, Username: msg.Username, Secret: msg.Secret}
	var err error
	if msg.ProfileID != "" {
		req, err = Gateway.ProfileRequest(msg.ProfileID, msg.Secret)
	}
	if err == nil {
		req, err = req.Normalize()
	}
	if err != nil {
		return writeStatus(ctx, conn, shellbridge.StatusError, err.Error())
	}

	target := logutil.Target(req.Username, req.Host, req.Port)
	if err := writeStatus(ctx, conn, shellbridge.StatusConnecting, "Connecting to "+target+"..."); err != nil {
		return err
	}
	if err := Gateway.Connect(req); err != nil {
		return writeStatus(ctx, conn, shellbridge.StatusError, err.Error())
	}
	return nil
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e shellbridge.Event) error {
	if e.Type == shellbridge.EventStatus {
		data, _ := json.Marshal(termStatusMsg{Type: "status", Status: e.Status, Message: e.Message, Attempt: e.Attempt})
		return writeFrame(ctx, conn, websocket.MessageText, data)
	}
	return writeFrame(ctx, conn, websocket.MessageBinary, e.Data)
}

func writeStatus(ctx context.Context, conn *websocket.Conn, status shellbridge.Status, message string) error {
	data, _ := json.Marshal(termStatusMsg{Type: "status", Status: status, Message: message})
	return writeFrame(ctx, conn, websocket.MessageText, data)
}

func writeFrame(ctx context.Context, conn *websocket.Conn, typ websocket.MessageType, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, terminalWriteTimeout)
	defer cancel()
	return conn.Write(ctx, typ, data)
}

// GetShellStatus reports the bridge state and recent transitions.
func GetShellStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Gateway.ShellStatus())
}
