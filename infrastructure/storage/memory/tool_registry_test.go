package memory

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/felixgeelhaar/influx-mcp/domain/tool"
)

func newTestTool(name string) tool.Tool {
	return tool.NewBuilder(name).
		WithHandler(func(context.Context, json.RawMessage) (tool.Result, error) {
			return tool.Result{}, nil
		}).
		MustBuild()
}

func TestToolRegistry_Register(t *testing.T) {
	t.Parallel()

	registry := NewToolRegistry()
	if err := registry.Register(newTestTool("timeseries.query")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(newTestTool("timeseries.query")); !errors.Is(err, tool.ErrToolExists) {
		t.Errorf("Register() duplicate error = %v, want ErrToolExists", err)
	}
	if registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1", registry.Count())
	}
}

func TestToolRegistry_RejectsWritableTools(t *testing.T) {
	t.Parallel()

	writable := tool.NewBuilder("timeseries.write").
		WithAnnotations(tool.Annotations{}).
		WithHandler(func(context.Context, json.RawMessage) (tool.Result, error) {
			return tool.Result{}, nil
		}).
		MustBuild()

	registry := NewToolRegistry()
	if err := registry.Register(writable); !errors.Is(err, tool.ErrNotReadOnly) {
		t.Errorf("Register() error = %v, want ErrNotReadOnly", err)
	}
}

func TestToolRegistry_ListSorted(t *testing.T) {
	t.Parallel()

	registry := NewToolRegistry()
	for _, name := range []string{"meta.list_tags", "health.ping", "features.extract"} {
		if err := registry.Register(newTestTool(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	want := []string{"features.extract", "health.ping", "meta.list_tags"}
	if got := registry.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	list := registry.List()
	for i, tl := range list {
		if tl.Name() != want[i] {
			t.Errorf("List()[%d] = %v, want %v", i, tl.Name(), want[i])
		}
	}
	if _, ok := registry.Get("health.ping"); !ok {
		t.Error("Get(health.ping) = false, want true")
	}
}

func TestToolRegistry_Concurrent(t *testing.T) {
	t.Parallel()

	registry := NewToolRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = registry.Register(newTestTool("tool" + string(rune('a'+i))))
			_ = registry.Names()
		}(i)
	}
	wg.Wait()
	if registry.Count() != 20 {
		t.Errorf("Count() = %d, want 20", registry.Count())
	}
}
