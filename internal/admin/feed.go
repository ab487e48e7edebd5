package admin

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/maps"
)

const writeWait = 5 * time.Second

// feed pushes a snapshot of every running map to each websocket client once
// per interval. Clients only listen; anything they send is discarded.
type feed struct {
	src      Source
	interval time.Duration
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func newFeed(src Source, interval time.Duration, origins []string, log *zap.Logger) *feed {
	if interval <= 0 {
		interval = time.Second
	}
	return &feed{
		src:      src,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}
}

// originChecker allows requests without an Origin header (tools, tests) and
// browsers from the configured origins. "*" allows everyone.
func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}

func (f *feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Debug("feed upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// the read loop notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		if err := f.push(conn); err != nil {
			f.log.Debug("feed client dropped", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *feed) push(conn *websocket.Conn) error {
	items := f.src.Stats()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(apiListResponse[maps.Stats]{Items: items, TotalItems: len(items)})
}
