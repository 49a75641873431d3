package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"detention/internal/platform/logger"
	approvaldom "detention/internal/services/approval/domain"
	"detention/internal/services/batch/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ApprovalFeed is the slice of the approval hub the stream needs
type ApprovalFeed interface {
	Pending() []approvaldom.Request
	Subscribe() (<-chan struct{}, func())
}

// Frame is one stream message. Type is "progress" or "approvals"
type Frame struct {
	Type      string                `json:"type"`
	Progress  *domain.Progress      `json:"progress,omitempty"`
	Approvals []approvaldom.Request `json:"approvals,omitempty"`
}

// StreamOptions tunes the websocket endpoint
type StreamOptions struct {
	// AllowedOrigins is checked against the Origin header; empty allows any
	AllowedOrigins []string
}

// Stream serves progress and pending approvals over a websocket.
// It is mounted outside the request timeout stack since connections are long lived
func Stream(o domain.OrchestratorPort, feed ApprovalFeed, opt StreamOptions) stdhttp.HandlerFunc {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opt.AllowedOrigins),
	}
	log := logger.Named("batch-stream")

	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer func() { _ = conn.Close() }()

		progress, stopProgress := o.Subscribe()
		defer stopProgress()

		var approvals <-chan struct{}
		if feed != nil {
			ch, stop := feed.Subscribe()
			defer stop()
			approvals = ch
		}

		// reader: drains control frames and notices the close
		closed := make(chan struct{})
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		write := func(f Frame) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return false
			}
			return true
		}

		if feed != nil && !write(Frame{Type: "approvals", Approvals: feed.Pending()}) {
			return
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-closed:
				return
			case p, ok := <-progress:
				if !ok {
					return
				}
				if !write(Frame{Type: "progress", Progress: &p}) {
					return
				}
			case <-approvals:
				if !write(Frame{Type: "approvals", Approvals: feed.Pending()}) {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}
}

func originChecker(allowed []string) func(*stdhttp.Request) bool {
	if len(allowed) == 0 {
		return func(*stdhttp.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *stdhttp.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
