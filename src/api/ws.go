package api

import (
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"github.com/harborchat/harbor/src/types"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// connectRequest is the structured connection-open request, parsed and
// validated once at the transport boundary.
type connectRequest struct {
	Token         string
	AnonymousName string
}

func parseConnectRequest(ctx *fasthttp.RequestCtx) connectRequest {
	args := ctx.QueryArgs()
	return connectRequest{
		Token:         string(args.Peek("token")),
		AnonymousName: string(args.Peek("anonymous_name")),
	}
}

// identify turns a connect request into a participant identity. A missing
// token means an anonymous visitor; a present but unverifiable token is an
// authentication failure.
func (a *API) identify(req connectRequest) (types.Identity, error) {
	if req.Token == "" {
		return types.Anonymous(req.AnonymousName), nil
	}
	return a.tokens.Verify(req.Token)
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// Register this on the fasthttp server at the "/ws" path.
func (a *API) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		req := parseConnectRequest(ctx)
		identity, authErr := a.identify(req)

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			if authErr != nil {
				// Reserved close code; the connection never reaches the hub.
				a.logger.Warn().Err(authErr).Msg("websocket authentication failed")
				msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
				_ = conn.WriteMessage(websocket.CloseMessage, msg)
				_ = conn.Close()
				return
			}

			client := a.hub.Register(&wsConn{conn}, identity)
			a.hub.SendTo(client.ID, types.ConnectionEstablished{
				Type:    types.EventConnectionEstablished,
				Message: "Connected to WebSocket",
			})
			go client.WritePump()
			client.ReadPump(a.session.Handle)
		})
		if err != nil {
			a.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// wsConn adapts fasthttp/websocket.Conn to types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }
func (w *wsConn) Close() error          { return w.conn.Close() }
