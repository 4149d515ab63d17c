// Package mcp exposes the registered tools over the Model Context Protocol
// using github.com/felixgeelhaar/mcp-go.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	mcpgo "github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
)

// Re-exported transport options.
type (
	// ServeOption configures stdio serving.
	ServeOption = mcpgo.ServeOption

	// HTTPOption configures HTTP transport.
	HTTPOption = mcpgo.HTTPOption
)

// Config configures the MCP server.
type Config struct {
	// Name is the server name.
	Name string

	// Version is the server version.
	Version string

	// Description is an optional server description.
	Description string

	// Instructions provides usage instructions for clients.
	Instructions string

	// Registry holds the tools to expose.
	Registry tool.Registry

	// Middleware wraps every tool call. Nil runs tools directly.
	Middleware *middleware.Registry
}

// Server wraps an mcp-go server. Every tool call runs through the
// middleware chain and failures are rendered as JSON error documents.
type Server struct {
	srv      *mcpgo.Server
	registry tool.Registry
	handler  middleware.Handler
	info     mcpgo.ServerInfo
}

// NewServer creates the server and registers every tool of cfg.Registry.
func NewServer(cfg Config) *Server {
	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: cfg.Description,
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}

	var opts []mcpgo.Option
	if cfg.Instructions != "" {
		opts = append(opts, mcpgo.WithInstructions(cfg.Instructions))
	}

	chain := cfg.Middleware
	if chain == nil {
		chain = middleware.NewRegistry()
	}

	s := &Server{
		srv:      mcpgo.NewServer(info, opts...),
		registry: cfg.Registry,
		handler:  chain.Handler(),
		info:     info,
	}
	if cfg.Registry != nil {
		for _, t := range cfg.Registry.List() {
			s.registerTool(t)
		}
	}
	return s
}

func (s *Server) registerTool(t tool.Tool) {
	s.srv.Tool(t.Name()).
		Description(t.Description()).
		Handler(func(ctx context.Context, input json.RawMessage) (string, error) {
			return s.invoke(ctx, t, input)
		})
}

// Call runs the named tool through the middleware chain, as a transport
// would. It returns tool.ErrToolNotFound for unknown names.
func (s *Server) Call(ctx context.Context, name string, input json.RawMessage) (string, error) {
	if s.registry == nil {
		return "", tool.ErrToolNotFound
	}
	t, ok := s.registry.Get(name)
	if !ok {
		return "", tool.ErrToolNotFound
	}
	return s.invoke(ctx, t, input)
}

func (s *Server) invoke(ctx context.Context, t tool.Tool, input json.RawMessage) (string, error) {
	call := &middleware.Call{Tool: t, Input: input, Started: time.Now()}
	result, err := s.handler(ctx, call)
	if err != nil {
		return "", newCallError(err)
	}
	return string(result.Output), nil
}

// Info returns the advertised server metadata.
func (s *Server) Info() mcpgo.ServerInfo {
	return s.info
}

// ServeStdio runs the server over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context, opts ...ServeOption) error {
	return mcpgo.ServeStdio(ctx, s.srv, opts...)
}

// ServeHTTP runs the server over HTTP.
func (s *Server) ServeHTTP(ctx context.Context, addr string, opts ...HTTPOption) error {
	return mcpgo.ServeHTTP(ctx, s.srv, addr, opts...)
}

// ErrorBody is the JSON shape of a failed call.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code of a failure.
type ErrorDetail struct {
	Code    query.Code     `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// CallError is returned to the transport for failed calls. Its message is
// the JSON ErrorBody, so clients receive the code and details verbatim.
type CallError struct {
	Body ErrorBody
	err  error
}

func newCallError(err error) *CallError {
	body := ErrorBody{Error: ErrorDetail{Code: query.CodeExecution, Message: err.Error()}}

	var qe *query.Error
	switch {
	case errors.As(err, &qe):
		body.Error = ErrorDetail{Code: qe.Code, Message: qe.Message, Details: qe.Details}
	case errors.Is(err, tool.ErrInvalidInput):
		body.Error.Code = query.CodeValidation
	}
	return &CallError{Body: body, err: err}
}

func (e *CallError) Error() string {
	raw, err := json.Marshal(e.Body)
	if err != nil {
		return e.Body.Error.Message
	}
	return string(raw)
}

func (e *CallError) Unwrap() error {
	return e.err
}
