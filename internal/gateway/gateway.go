// Package gateway is the bot's HTTP control surface: health and metrics
// for monitoring, and an authenticated admin API to start and stop the
// bot, edit settings, inspect and erase memory, and preview prompts.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/bot"
	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/security"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/internal/telemetry"
)

// Service names resolved at Start.
const (
	ServiceMemory    = "memory.service"
	ServiceSettings  = "settings.store"
	ServiceMetrics   = "telemetry.metrics"
	ServiceResponder = "bot.responder"

	// ServiceAudit is registered by the gateway for other modules.
	ServiceAudit = "security.audit"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. Nothing depends on it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	audit     *security.AuditLogger
	auditFile io.Closer
	limiter   *security.RateLimiter
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	memory    *memory.Service
	settings  *settings.Store
	metrics   *telemetry.Metrics
	responder *bot.Responder
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.limiter = security.NewRateLimiter(g.config.RateLimit)

	redactor := security.NewRedactor()
	redactor.AddLiteral(g.config.Auth.BearerToken)
	redactor.AddLiteral(g.config.Auth.BasicPass)

	switch path := g.config.AuditLog; path {
	case "-":
	default:
		if path == "" {
			path = filepath.Join(ctx.DataDir, "audit.jsonl")
		}
		f, err := security.OpenAuditFile(path)
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		g.auditFile = f
		g.audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: f, Redactor: redactor})
		ctx.RegisterService(ServiceAudit, g.audit)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	host, _, err := net.SplitHostPort(g.config.Bind)
	if err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if !g.config.Auth.IsConfigured() && !g.config.AllowRemote && !isLoopback(host) {
		return fmt.Errorf("gateway: refusing to bind %s without auth; configure auth or set allow_remote", g.config.Bind)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "auth", g.config.Auth.IsConfigured())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// resolveServices binds optional services. Missing ones disable the
// endpoints that need them.
func (g *Gateway) resolveServices() {
	if svc, ok := core.Service[*memory.Service](g.appCtx, ServiceMemory); ok {
		g.memory = svc
	}
	if svc, ok := core.Service[*settings.Store](g.appCtx, ServiceSettings); ok {
		g.settings = svc
	}
	if svc, ok := core.Service[*telemetry.Metrics](g.appCtx, ServiceMetrics); ok {
		g.metrics = svc
	}
	if svc, ok := core.Service[*bot.Responder](g.appCtx, ServiceResponder); ok {
		g.responder = svc
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	var err error
	if g.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
		defer cancel()
		g.logger.Info("gateway shutting down")
		err = g.server.Shutdown(shutdownCtx)
	}
	if g.auditFile != nil {
		err = errors.Join(err, g.auditFile.Close())
	}
	return err
}
