// openapi-mcp serves the operations of an OpenAPI document as MCP tools.
//
// Each tool call is forwarded to the upstream API the document describes.
// Business errors from the API come back to the agent as JSON-RPC errors
// whose code is derived from the HTTP status.
//
// Usage:
//
//	openapi-mcp serve --spec openapi.yaml --upstream https://api.example.com [--transport http|ws|stdio]
//	openapi-mcp tools --spec openapi.yaml
//	openapi-mcp tools --url http://localhost:8080/mcp
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	mcp "github.com/felixgeelhaar/openapi-mcp"
	"github.com/felixgeelhaar/openapi-mcp/client"
	"github.com/felixgeelhaar/openapi-mcp/internal/config"
	"github.com/felixgeelhaar/openapi-mcp/internal/telemetry"
	"github.com/felixgeelhaar/openapi-mcp/middleware"
	"github.com/felixgeelhaar/openapi-mcp/schema"
	"github.com/felixgeelhaar/openapi-mcp/server"
	"github.com/felixgeelhaar/openapi-mcp/transport"
	"github.com/felixgeelhaar/openapi-mcp/upstream"
)

const usage = `openapi-mcp exposes an OpenAPI-described API as MCP tools.

Usage:
  openapi-mcp serve --spec FILE --upstream URL [flags]
  openapi-mcp tools (--spec FILE | --url URL)

Run "openapi-mcp <command> --help" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:], stderr)
	case "tools":
		return listTools(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	path, _ := fs.GetString(config.FlagConfig)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger := newLogger(cfg.Logging, stderr)

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, cfg.Server.Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", middleware.F("error", err.Error()))
		}
	}()

	srv, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	handler := mcp.Handler(srv, mcp.WithMiddleware(serveMiddleware(cfg, srv.Registry(), logger)...))
	identity := identityResolver(cfg.Auth)

	logger.Info("serving",
		middleware.F("transport", cfg.Server.Transport),
		middleware.F("addr", cfg.Server.Addr),
		middleware.F("upstream", cfg.Upstream.URL),
	)

	switch cfg.Server.Transport {
	case config.TransportStdio:
		err = transport.NewStdio(transport.WithStdioLogger(logger)).Serve(ctx, handler)
	case config.TransportWebSocket:
		opts := []transport.WebSocketOption{
			transport.WithWebSocketPath(cfg.Server.Path),
			transport.WithWebSocketLogger(logger),
		}
		if identity != nil {
			opts = append(opts, transport.WithWebSocketIdentityResolver(identity))
		}
		err = transport.NewWebSocket(cfg.Server.Addr, opts...).Serve(ctx, handler)
	default:
		err = transport.NewHTTP(cfg.Server.Addr, httpOptions(cfg, identity, logger)...).Serve(ctx, handler)
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("shut down")
		return nil
	}
	return err
}

// newGateway loads the document, registers a forwarding handler per tool
// and fails when registry and catalog disagree.
func newGateway(ctx context.Context, cfg *config.Config, logger middleware.Logger) (*server.Server, error) {
	upOpts := []upstream.Option{
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithLogger(logger),
	}
	if cfg.Upstream.IdentityHeader != "" {
		upOpts = append(upOpts, upstream.WithIdentityHeader(cfg.Upstream.IdentityHeader))
	}
	for k, v := range cfg.Upstream.Headers {
		upOpts = append(upOpts, upstream.WithHeader(k, v))
	}
	api, err := upstream.New(cfg.Upstream.URL, upOpts...)
	if err != nil {
		return nil, err
	}

	srvOpts := []server.Option{server.WithLogger(logger)}
	if cfg.Server.ValidateArgs {
		srvOpts = append(srvOpts, server.WithArgumentValidation())
	}

	info := server.Info{Name: cfg.Server.Name, Version: cfg.Server.Version}
	srv, err := mcp.NewGateway(ctx, info, server.FileLoader(cfg.Spec), api, srvOpts...)
	if err != nil {
		return nil, err
	}

	tools, err := srv.Catalog().Tools(ctx)
	if err != nil {
		return nil, err
	}
	if dups := server.DuplicateNames(tools); len(dups) > 0 {
		logger.Warn("duplicate tool names; the first definition answers calls",
			middleware.F("names", strings.Join(dups, ",")),
		)
	}
	logger.Info("tool catalog loaded",
		middleware.F("spec", cfg.Spec),
		middleware.F("tools", len(tools)),
	)
	return srv, nil
}

func serveMiddleware(cfg *config.Config, reg *server.Registry, logger middleware.Logger) []middleware.Middleware {
	stack := middleware.DefaultStack(logger)
	stack = append(stack, middleware.OTel(middleware.WithOTelServiceName(cfg.Telemetry.ServiceName)))
	if cfg.Server.MaxBodyBytes > 0 {
		stack = append(stack, middleware.SizeLimit(cfg.Server.MaxBodyBytes, middleware.WithSizeLimitLogger(logger)))
	}
	if cfg.RateLimit.Rate > 0 {
		burst := cfg.RateLimit.Burst
		if burst == 0 {
			burst = cfg.RateLimit.Rate
		}
		stack = append(stack, middleware.RateLimitByTool(cfg.RateLimit.Rate, burst, reg.Has,
			middleware.WithRateLimitLogger(logger)))
	}
	return stack
}

func identityResolver(cfg config.AuthConfig) transport.IdentityResolver {
	var resolvers []transport.IdentityResolver
	if cfg.JWTSecret != "" {
		resolvers = append(resolvers, transport.BearerJWTIdentity([]byte(cfg.JWTSecret)))
	}
	if cfg.IdentityHeader != "" {
		resolvers = append(resolvers, transport.HeaderIdentity(cfg.IdentityHeader))
	}
	switch len(resolvers) {
	case 0:
		return nil
	case 1:
		return resolvers[0]
	default:
		return transport.ChainIdentity(resolvers...)
	}
}

func httpOptions(cfg *config.Config, identity transport.IdentityResolver, logger middleware.Logger) []transport.HTTPOption {
	opts := []transport.HTTPOption{
		transport.WithPath(cfg.Server.Path),
		transport.WithReadTimeout(cfg.Server.ReadTimeout),
		transport.WithWriteTimeout(cfg.Server.WriteTimeout),
		transport.WithHTTPLogger(logger),
	}
	if cfg.Server.MaxBodyBytes > 0 {
		opts = append(opts, transport.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	}
	if identity != nil {
		opts = append(opts, transport.WithIdentityResolver(identity))
	}
	if cfg.Server.CORS {
		opts = append(opts, transport.WithDefaultCORS())
	}
	return opts
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *middleware.SlogLogger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return middleware.NewSlogLogger(slog.New(h))
}

// listTools prints tool definitions as JSON, either compiled from a local
// document or fetched from a running server.
func listTools(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("tools", pflag.ContinueOnError)
	spec := fs.String("spec", "", "compile tools from this OpenAPI document")
	url := fs.String("url", "", "list tools from the MCP server at this URL")
	token := fs.String("token", "", "bearer token sent to --url")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var tools []schema.Tool
	switch {
	case *spec != "" && *url != "":
		return errors.New("--spec and --url are mutually exclusive")
	case *spec != "":
		doc, err := schema.LoadFile(*spec)
		if err != nil {
			return err
		}
		tools = schema.Compile(doc)
	case *url != "":
		var httpOpts []client.HTTPOption
		if *token != "" {
			httpOpts = append(httpOpts, client.WithBearerToken(*token))
		}
		c := client.NewHTTP(*url, httpOpts)
		defer c.Close()

		if _, err := c.Initialize(ctx); err != nil {
			return err
		}
		var err error
		if tools, err = c.ListTools(ctx); err != nil {
			return err
		}
	default:
		return errors.New("one of --spec or --url is required")
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tools)
}
