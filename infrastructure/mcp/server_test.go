package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/storage/memory"
)

func newTestServer(t *testing.T, mws ...middleware.Middleware) *Server {
	t.Helper()

	registry := memory.NewToolRegistry()
	tools := []tool.Tool{
		tool.NewBuilder("health.ping").
			WithDescription("ping").
			WithHandler(func(context.Context, json.RawMessage) (tool.Result, error) {
				return tool.NewResult(json.RawMessage(`{"ok":true}`)), nil
			}).
			MustBuild(),
		tool.NewBuilder("meta.list_tags").
			WithDescription("tags").
			WithHandler(func(context.Context, json.RawMessage) (tool.Result, error) {
				return tool.Result{}, query.NewDatabaseNotAllowedError("secret")
			}).
			MustBuild(),
		tool.NewBuilder("meta.list_fields").
			WithDescription("fields").
			WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
				if _, err := tool.Decode[struct{ DB string }](input); err != nil {
					return tool.Result{}, err
				}
				return tool.Result{}, errors.New("socket closed")
			}).
			MustBuild(),
	}
	for _, tl := range tools {
		if err := registry.Register(tl); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	return NewServer(Config{
		Name:         "influx-mcp",
		Version:      "test",
		Instructions: "read-only InfluxDB access",
		Registry:     registry,
		Middleware:   middleware.NewRegistry().Use(mws...),
	})
}

func TestServer_Info(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	if s.Info().Name != "influx-mcp" {
		t.Errorf("Info().Name = %v, want influx-mcp", s.Info().Name)
	}
	if !s.Info().Capabilities.Tools {
		t.Error("Capabilities.Tools = false, want true")
	}
}

func TestServer_Call(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	ctx := context.Background()

	out, err := s.Call(ctx, "health.ping", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("Call() = %v, want %v", out, `{"ok":true}`)
	}

	if _, err := s.Call(ctx, "timeseries.write", nil); !errors.Is(err, tool.ErrToolNotFound) {
		t.Errorf("Call(unknown) error = %v, want ErrToolNotFound", err)
	}
}

func TestServer_CallErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tool     string
		input    string
		wantCode query.Code
	}{
		{name: "domain error keeps code", tool: "meta.list_tags", wantCode: query.CodeDatabaseNotAllowed},
		{name: "bad input is a validation error", tool: "meta.list_fields", input: `[`, wantCode: query.CodeValidation},
		{name: "other errors are execution errors", tool: "meta.list_fields", input: `{}`, wantCode: query.CodeExecution},
	}

	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.Call(context.Background(), tt.tool, json.RawMessage(tt.input))
			var ce *CallError
			if !errors.As(err, &ce) {
				t.Fatalf("Call() error = %T, want *CallError", err)
			}
			var body ErrorBody
			if err := json.Unmarshal([]byte(ce.Error()), &body); err != nil {
				t.Fatalf("error text is not JSON: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %v, want %v", body.Error.Code, tt.wantCode)
			}
			if body.Error.Message == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestServer_RunsMiddleware(t *testing.T) {
	t.Parallel()

	var seen []string
	record := func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (tool.Result, error) {
			seen = append(seen, call.Tool.Name())
			return next(ctx, call)
		}
	}

	s := newTestServer(t, record)
	if _, err := s.Call(context.Background(), "health.ping", nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(seen) != 1 || seen[0] != "health.ping" {
		t.Errorf("seen = %v, want [health.ping]", seen)
	}
}
