package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/openapi-mcp/schema"
)

// Loader fetches the OpenAPI document a Catalog compiles.
type Loader func(ctx context.Context) (schema.Document, error)

// Compiler turns a document into tool definitions.
type Compiler func(doc schema.Document) []schema.Tool

// StaticDocument returns a Loader that always yields doc.
func StaticDocument(doc schema.Document) Loader {
	return func(context.Context) (schema.Document, error) {
		return doc, nil
	}
}

// FileLoader returns a Loader that reads a JSON or YAML document from path.
func FileLoader(path string) Loader {
	return func(context.Context) (schema.Document, error) {
		return schema.LoadFile(path)
	}
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCompiler replaces schema.Compile.
func WithCompiler(c Compiler) CatalogOption {
	return func(cat *Catalog) {
		cat.compile = c
	}
}

// catalogState is the loaded form of a Catalog. A nil state means the
// document has not been compiled yet.
type catalogState struct {
	doc    schema.Document
	tools  []schema.Tool
	byName map[string]int
}

// Catalog memoizes the compiled tool list for the lifetime of the process.
//
// The first caller loads and compiles the document; concurrent first callers
// share that single load. A failed load is not remembered, so the next call
// tries again. Once loaded, the catalog is never invalidated.
type Catalog struct {
	load    Loader
	compile Compiler

	mu    sync.RWMutex
	state *catalogState

	group        singleflight.Group
	compilations atomic.Int64
}

// NewCatalog creates a Catalog backed by load.
func NewCatalog(load Loader, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		load:    load,
		compile: schema.Compile,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tools returns the compiled tool list, loading it on first use.
func (c *Catalog) Tools(ctx context.Context) ([]schema.Tool, error) {
	st, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return st.tools, nil
}

// Tool returns the first compiled tool with the given name.
func (c *Catalog) Tool(ctx context.Context, name string) (schema.Tool, bool, error) {
	st, err := c.ensure(ctx)
	if err != nil {
		return schema.Tool{}, false, err
	}
	i, ok := st.byName[name]
	if !ok {
		return schema.Tool{}, false, nil
	}
	return st.tools[i], true, nil
}

// Document returns the loaded OpenAPI document.
func (c *Catalog) Document(ctx context.Context) (schema.Document, error) {
	st, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return st.doc, nil
}

// Loaded reports whether the document has been compiled.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state != nil
}

// Compilations returns how many times the compiler has run.
func (c *Catalog) Compilations() int64 {
	return c.compilations.Load()
}

func (c *Catalog) ensure(ctx context.Context) (*catalogState, error) {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st != nil {
		return st, nil
	}

	// The shared load is detached from the caller's cancellation; each
	// caller still returns when its own ctx ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("catalog", func() (any, error) {
		c.mu.RLock()
		st := c.state
		c.mu.RUnlock()
		if st != nil {
			return st, nil
		}

		if c.load == nil {
			return nil, fmt.Errorf("loading openapi document: no loader configured")
		}
		doc, err := c.load(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("loading openapi document: %w", err)
		}

		tools := c.compile(doc)
		c.compilations.Add(1)
		if tools == nil {
			tools = []schema.Tool{}
		}

		st = &catalogState{
			doc:    doc,
			tools:  tools,
			byName: make(map[string]int, len(tools)),
		}
		for i, t := range tools {
			if _, dup := st.byName[t.Name]; !dup {
				st.byName[t.Name] = i
			}
		}

		c.mu.Lock()
		c.state = st
		c.mu.Unlock()
		return st, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalogState), nil
	}
}

// DuplicateNames returns tool names that occur more than once, in
// first-seen order.
func DuplicateNames(tools []schema.Tool) []string {
	seen := make(map[string]int, len(tools))
	var dups []string
	for _, t := range tools {
		seen[t.Name]++
		if seen[t.Name] == 2 {
			dups = append(dups, t.Name)
		}
	}
	return dups
}
