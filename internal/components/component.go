package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paperpost/internal/graph"
)

const (
	StorageComponentName  = "storage"
	PlatformComponentName = "platforms"
	MetricsComponentName  = "metrics"
)

type IComponent interface {
	Name() string
	Dependencies() []string
	Validate() error
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
}

type Registry struct {
	components map[string]IComponent
	order      []string
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		components: make(map[string]IComponent),
		order:      make([]string, 0),
		logger:     logger.With("component", "registry"),
	}
}

func (r *Registry) Register(component IComponent) error {
	name := component.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.components[name] = component
	return nil
}

// Get returns the named component. Asking for an unregistered component is a
// wiring bug and panics.
func (r *Registry) Get(name string) IComponent {
	comp, exists := r.components[name]
	if !exists {
		panic(fmt.Sprintf("component %s not found", name))
	}
	return comp
}

// InitializeAll validates every component before initializing any of them,
// both in dependency order. If initialization fails, the components already
// initialized are still closed by CloseAll.
func (r *Registry) InitializeAll(ctx context.Context) error {
	nodes := make(map[string]graph.Node)
	for name, comp := range r.components {
		nodes[name] = &componentNode{comp: comp}
	}

	order, err := graph.TopologicalSort(nodes)
	if err != nil {
		return err
	}

	for _, name := range order {
		comp := r.components[name]
		if err := comp.Validate(); err != nil {
			return fmt.Errorf("component %s validation failed: %w", name, err)
		}
	}

	for i, name := range order {
		comp := r.components[name]
		r.logger.Debug("Initializing component", "name", name)
		if err := comp.Initialize(ctx); err != nil {
			r.order = order[:i]
			return fmt.Errorf("component %s initialization failed: %w", name, err)
		}
	}

	r.order = order
	return nil
}

type componentNode struct {
	comp IComponent
}

func (cn *componentNode) GetName() string {
	return cn.comp.Name()
}

func (cn *componentNode) GetDependencies() []string {
	return cn.comp.Dependencies()
}

// CloseAll closes initialized components in reverse order. Every component
// is closed even if an earlier one fails.
func (r *Registry) CloseAll(ctx context.Context) error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		comp := r.components[name]
		if err := comp.Close(ctx); err != nil {
			r.logger.Error("Error closing component", "name", name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.order = nil
	return errors.Join(errs...)
}
