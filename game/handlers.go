package game

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	gateway  *Gateway
	upgrader websocket.Upgrader
}

func NewHandler(gateway *Gateway, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// ConnectHandler upgrades the request and hands the connection to the
// gateway for the rest of its life.
func (h *Handler) ConnectHandler(ctx *gin.Context) {
	socket, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("websocket upgrade failed")
		return
	}

	conn := NewConn(NewWebsocketSession(socket))
	h.gateway.Serve(conn)
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.ConnectHandler)
}
