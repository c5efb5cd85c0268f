package types

import (
	"fmt"
	"sync"
)

// Manager holds every type known to one compiled model: the built-ins, the
// species types the model declares and parametric container types created
// while compiling. Species registration stops at Freeze; lookups are safe
// for concurrent use afterwards.
type Manager struct {
	mu     sync.RWMutex
	byName map[string]*Type
	byID   map[ID]*Type
	lists  map[*Type]*Type
	nextID ID
	frozen bool
}

// NewManager returns a manager preloaded with the built-in types.
func NewManager() *Manager {
	m := &Manager{
		byName: make(map[string]*Type),
		byID:   make(map[ID]*Type),
		lists:  make(map[*Type]*Type),
		nextID: FirstSpeciesID,
	}
	for _, t := range builtins {
		m.byName[t.name] = t
		m.byID[t.id] = t
	}
	return m
}

// RegisterSpecies declares the type of a species. parent is nil for a
// species extending agent directly.
func (m *Manager) RegisterSpecies(name string, parent *Type) (*Type, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		panic(fmt.Sprintf("types: species %q registered after freeze", name))
	}
	if _, exists := m.byName[name]; exists {
		return nil, fmt.Errorf("type %q is already defined", name)
	}
	if parent == nil {
		parent = Agent
	}
	if !parent.IsAgent() {
		return nil, fmt.Errorf("species %q cannot extend non-agent type %s", name, parent)
	}
	t := &Type{
		id:     m.nextID,
		name:   name,
		parent: parent,
		family: Agent,
		def:    Agent.def,
	}
	m.nextID++
	m.byName[name] = t
	m.byID[t.id] = t
	return t, nil
}

// Freeze ends species registration.
func (m *Manager) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Lookup finds a type by name.
func (m *Manager) Lookup(name string) (*Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byName[name]
	return t, ok
}

// ByID finds a type by id.
func (m *Manager) ByID(id ID) (*Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byID[id]
	return t, ok
}

// ListOf returns the parametric list type with the given content type.
func (m *Manager) ListOf(content *Type) *Type {
	if content == nil || content == Unknown {
		return List
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.lists[content]; ok {
		return t
	}
	t := &Type{
		id:        ListID,
		name:      "list",
		parent:    List,
		container: true,
		content:   content,
		family:    List,
		def:       List.def,
	}
	m.lists[content] = t
	return t
}
