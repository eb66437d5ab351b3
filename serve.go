package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/karel/api"
	"github.com/wricardo/karel/transport/mcp"
	"github.com/wricardo/karel/transport/websocket"
)

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"server", "http"},
		Usage:   "Run the HTTP server with API, WebSocket and MCP endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP server port"},
			&cli.StringFlag{Name: "sessions", Usage: "directory to persist sessions in"},
			&cli.StringFlag{Name: "history-driver", Usage: "run history database: sqlite or mysql"},
			&cli.StringFlag{Name: "history-dsn", Usage: "run history database DSN"},
			&cli.BoolFlag{Name: "paced", Usage: "pace runs by the world's speed"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: a.serve,
	}
}

// applyServeFlags copies the serve flags that were given over the config.
func (a *app) applyServeFlags(cmd *cli.Command) error {
	cfg := &a.cfg
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}
	if cmd.IsSet("sessions") {
		cfg.Sessions.Dir = cmd.String("sessions")
	}
	if cmd.IsSet("history-driver") {
		cfg.History.Driver = cmd.String("history-driver")
	}
	if cmd.IsSet("history-dsn") {
		cfg.History.DSN = cmd.String("history-dsn")
	}
	if cmd.Bool("paced") {
		cfg.Simulation.Paced = true
	}
	if cmd.Bool("ngrok") {
		cfg.Ngrok.Enabled = true
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.Ngrok.Domain = cmd.String("ngrok-domain")
	}
	return cfg.Validate()
}

// serve starts the HTTP server with REST API, WebSocket hub, and an /mcp
// proxy endpoint, plus an ngrok tunnel when enabled. It returns once ctx is
// cancelled and the server has shut down.
func (a *app) serve(ctx context.Context, cmd *cli.Command) error {
	if err := a.applyServeFlags(cmd); err != nil {
		return err
	}
	logger := a.logger

	hub := websocket.NewHub(logger.Named("websocket"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	st, err := a.buildStack(stackOptions{broadcaster: hub, persist: true, history: true})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer st.Close(logger)

	go sessionCleanupRoutine(ctx, st.sessions, a.cfg.Server.SessionTTL, logger)
	if st.persistence != nil {
		go filesystemSyncRoutine(ctx, st.sessions, st.persistence, logger)
	}

	addr := a.cfg.Server.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	baseURL := "http://" + loopbackAddr(listener.Addr())
	handler := newHandler(api.NewServer(st.service, hub, logger.Named("api")), mcp.NewClient(baseURL), logger)

	httpServer := &http.Server{
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// synchronous runs answer when the program ends
		WriteTimeout: a.cfg.Simulation.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening",
			zap.String("addr", listener.Addr().String()),
			zap.String("api", baseURL+"/api"),
			zap.String("websocket", "ws"+baseURL[len("http"):]+"/ws?session=<session_id>"),
			zap.String("mcp", baseURL+"/mcp"),
		)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if a.cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.serveNgrok(ctx, handler)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(serr))
	}
	stopHub()

	wg.Wait()
	logger.Info("server stopped")
	return err
}

// serveNgrok tunnels handler through ngrok until ctx is done.
func (a *app) serveNgrok(ctx context.Context, handler http.Handler) {
	logger := a.logger.Named("ngrok")
	cfg := a.cfg.Ngrok

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info("using custom ngrok domain", zap.String("domain", cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Warn("failed to start ngrok tunnel", zap.Error(err))
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("api", url+"/api"),
		zap.String("mcp", url+"/mcp"),
	)

	srv := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// newHandler mounts the API at the root and the MCP tools at /mcp.
func newHandler(apiServer http.Handler, mcpClient *mcp.Client, logger *zap.Logger) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)
		if response == nil {
			// notifications get no reply
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, response); err != nil {
			logger.Warn("failed to write MCP response", zap.Error(err))
		}
	})
	return mainRouter
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// loopbackAddr turns a listener address into one a local client can dial.
func loopbackAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		return fmt.Sprintf("127.0.0.1:%d", tcp.Port)
	}
	return tcp.String()
}

func (a *app) mcpCommand() *cli.Command {
	return &cli.Command{
		Name:    "mcp",
		Aliases: []string{"stdio-mcp", "mcp-stdio"},
		Usage:   "Run an MCP stdio server",
		Description: "Uses the API server at --api when it answers; otherwise starts an " +
			"internal API server on a random loopback port.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "API server to proxy", Value: "http://localhost:8080", Sources: cli.EnvVars("KAREL_API_URL")},
		},
		Action: a.serveMCP,
	}
}

// serveMCP runs an MCP stdio server against an external API when one is
// reachable, and an internal one otherwise.
func (a *app) serveMCP(ctx context.Context, cmd *cli.Command) error {
	logger := a.logger
	baseURL := cmd.String("api")

	logger.Info("checking for external API server", zap.String("url", baseURL))
	if !apiAvailable(ctx, baseURL) {
		logger.Info("no external API server found, starting internal HTTP server")

		st, err := a.buildStack(stackOptions{history: true})
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer st.Close(logger)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		httpServer := &http.Server{Handler: api.NewServer(st.service, nil, logger.Named("api"))}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + listener.Addr().String()
	}

	logger.Info("MCP stdio server ready", zap.String("api", baseURL))
	return server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())
}

func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
