package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"coach/log"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	ChannelOpenFile     = "dialog:openFile"
	ChannelSaveFeedback = "dialog:saveFeedback"
	ChannelSaveAudio    = "dialog:saveAudio"

	ipcPath = "/ipc"
)

// Request is one IPC call: a channel name and its string arguments.
type Request struct {
	Channel string   `json:"channel"`
	Args    []string `json:"args,omitempty"`
}

// Response carries a string, null or a boolean depending on the channel.
type Response struct {
	Result json.RawMessage `json:"result"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Server exposes an Exporter over HTTP on a loopback address. Every request
// must carry the per-launch bearer token.
type Server struct {
	e     *echo.Echo
	ln    net.Listener
	token string
}

func Listen(addr string, ex Exporter) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	e := initRoutes(ex, token)
	e.Listener = ln
	e.Server.ReadHeaderTimeout = 5 * time.Second
	return &Server{e: e, ln: ln, token: token}, nil
}

func (s *Server) URL() string   { return "http://" + s.ln.Addr().String() }
func (s *Server) Token() string { return s.token }

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	log.Infof("export bridge listening on %s", s.ln.Addr())
	if err := s.e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func initRoutes(ex Exporter, token string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/live", live)
	e.POST(ipcPath, ipc(ex), requireToken(token))
	return e
}

func live(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
}

func requireToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
			}
			return next(c)
		}
	}
}

func ipc(ex Exporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req Request
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "bad request"})
		}
		ctx := c.Request().Context()

		var result any
		switch req.Channel {
		case ChannelOpenFile:
			if len(req.Args) != 0 {
				return badArgs(c, req)
			}
			if text, ok := ex.OpenTextFile(ctx); ok {
				result = text
			}
		case ChannelSaveFeedback:
			if len(req.Args) != 1 {
				return badArgs(c, req)
			}
			result = ex.SaveFeedback(ctx, req.Args[0])
		case ChannelSaveAudio:
			if len(req.Args) != 1 {
				return badArgs(c, req)
			}
			result = ex.SaveAudio(ctx, req.Args[0])
		default:
			return c.JSON(http.StatusNotFound, errorResponse{Message: "unknown channel " + req.Channel})
		}

		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, Response{Result: raw})
	}
}

func badArgs(c echo.Context, req Request) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Message: "wrong argument count for " + req.Channel})
}
