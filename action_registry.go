package chainable

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry is a set of named actions that can be shared by many chains.
//
// Names inside a chain need not be unique, but registry names are: they are
// how a Builder finds an action with Use. A Registry is safe for concurrent
// use.
type Registry struct {
	actions *xsync.MapOf[string, Action]
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: xsync.NewMapOf[string, Action](),
	}
}

// Register adds an action to the registry under its name.
func (r *Registry) Register(action Action) error {
	if err := action.validate(); err != nil {
		return err
	}
	if _, loaded := r.actions.LoadOrStore(action.Name(), action); loaded {
		return fmt.Errorf("action with name '%s': %w", action.Name(), ErrActionExists)
	}
	return nil
}

// Get retrieves an action from the registry by its name.
func (r *Registry) Get(name string) (Action, error) {
	action, ok := r.actions.Load(name)
	if !ok {
		return Action{}, fmt.Errorf("action with name '%s': %w", name, ErrActionNotFound)
	}
	return action, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.actions.Size())
	r.actions.Range(func(name string, _ Action) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
