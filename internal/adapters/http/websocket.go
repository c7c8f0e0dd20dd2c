package httpadapter

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/websocket"
)

// pushChannel upgrades the request and serves the caller's notification
// channel until the client leaves or the router lifetime ends.
func (rt *Router) pushChannel(w http.ResponseWriter, r *http.Request) {
	if rt.session == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push channel disabled"})
		return
	}
	principal, _ := principalFromContext(r.Context())

	server := websocket.Server{
		Handshake: func(_ *websocket.Config, req *http.Request) error {
			return rt.checkOrigin(req.Header.Get("Origin"))
		},
		Handler: func(conn *websocket.Conn) {
			ctx, cancel := context.WithCancel(r.Context())
			defer cancel()
			stop := context.AfterFunc(rt.lifetime, cancel)
			defer stop()

			rt.session.Serve(ctx, principal.UserID, conn)
		},
	}
	server.ServeHTTP(w, r)
}

func (rt *Router) checkOrigin(origin string) error {
	if len(rt.cfg.WSAllowedOrigins) == 0 {
		return nil
	}
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if slices.Contains(rt.cfg.WSAllowedOrigins, origin) {
		return nil
	}
	rt.logger.Warn("push_origin_rejected", "origin", origin)
	return fmt.Errorf("origin %q not allowed", origin)
}
