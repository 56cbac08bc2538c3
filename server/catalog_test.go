package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/openapi-mcp/schema"
)

func TestCatalog_CompilesOnce(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	cat := NewCatalog(func(context.Context) (schema.Document, error) {
		loads.Add(1)
		<-release
		return accountsDoc(), nil
	})

	if cat.Loaded() {
		t.Fatal("Loaded() = true before first use")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tools, err := cat.Tools(context.Background())
			if err == nil && len(tools) != 3 {
				err = errors.New("unexpected tool count")
			}
			errs <- err
		}()
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Tools() error: %v", err)
		}
	}
	if got := cat.Compilations(); got != 1 {
		t.Errorf("Compilations() = %d, want 1", got)
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
	if !cat.Loaded() {
		t.Error("Loaded() = false after first use")
	}
}

func TestCatalog_FailedLoadIsRetried(t *testing.T) {
	fail := true
	cat := NewCatalog(func(context.Context) (schema.Document, error) {
		if fail {
			return nil, errors.New("not yet")
		}
		return accountsDoc(), nil
	})

	if _, err := cat.Tools(context.Background()); err == nil {
		t.Fatal("expected first load to fail")
	}
	if cat.Loaded() || cat.Compilations() != 0 {
		t.Fatal("failed load must not be cached")
	}

	fail = false
	if _, err := cat.Tools(context.Background()); err != nil {
		t.Fatalf("Tools() error: %v", err)
	}
	if cat.Compilations() != 1 {
		t.Errorf("Compilations() = %d, want 1", cat.Compilations())
	}
}

func TestCatalog_CanceledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	cat := NewCatalog(func(ctx context.Context) (schema.Document, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return accountsDoc(), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cat.Tools(ctx)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		_, err := cat.Tools(context.Background())
		secondErr <- err
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first Tools() = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("second Tools() error: %v", err)
	}
	if !cat.Loaded() || cat.Compilations() != 1 {
		t.Errorf("Loaded() = %v, Compilations() = %d, want true, 1", cat.Loaded(), cat.Compilations())
	}
}

func TestCatalog_NoLoader(t *testing.T) {
	if _, err := NewCatalog(nil).Tools(context.Background()); err == nil {
		t.Error("expected error without loader")
	}
}

func TestCatalog_Tool(t *testing.T) {
	first := schema.Tool{Name: "dup", Description: "first"}
	second := schema.Tool{Name: "dup", Description: "second"}
	cat := NewCatalog(StaticDocument(schema.Document{}), WithCompiler(func(schema.Document) []schema.Tool {
		return []schema.Tool{first, second, {Name: "other"}}
	}))

	tool, ok, err := cat.Tool(context.Background(), "dup")
	if err != nil || !ok {
		t.Fatalf("Tool() = %v, %v", ok, err)
	}
	if tool.Description != "first" {
		t.Errorf("Description = %q, want first definition", tool.Description)
	}

	if _, ok, _ := cat.Tool(context.Background(), "missing"); ok {
		t.Error("expected missing tool to be absent")
	}

	tools, _ := cat.Tools(context.Background())
	if len(tools) != 3 {
		t.Errorf("len(Tools()) = %d, want every definition kept", len(tools))
	}
}

func TestCatalog_Document(t *testing.T) {
	doc := accountsDoc()
	cat := NewCatalog(StaticDocument(doc))

	got, err := cat.Document(context.Background())
	if err != nil {
		t.Fatalf("Document() error: %v", err)
	}
	if got.Title() != "Accounts" {
		t.Errorf("Title() = %q, want Accounts", got.Title())
	}
}

func TestFileLoader(t *testing.T) {
	cat := NewCatalog(FileLoader("../schema/testdata/crm.yaml"))
	tools, err := cat.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools() error: %v", err)
	}
	if len(tools) != 5 {
		t.Errorf("len(tools) = %d, want 5", len(tools))
	}

	if _, err := NewCatalog(FileLoader("testdata/missing.yaml")).Tools(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDuplicateNames(t *testing.T) {
	tools := []schema.Tool{{Name: "a"}, {Name: "b"}, {Name: "a"}, {Name: "a"}, {Name: "b"}, {Name: "c"}}
	got := DuplicateNames(tools)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("DuplicateNames() = %v, want [a b]", got)
	}
	if DuplicateNames(nil) != nil {
		t.Error("expected nil for no tools")
	}
}
