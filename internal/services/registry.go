package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
	"github.com/asakaida/relgraph/internal/services/relation"
)

// ErrUnknownModel is returned for model names that were never registered
var ErrUnknownModel = errors.New("unknown model")

// Registry holds the registered models and their resolved relations.
// Registration is all-or-nothing; lookups are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executor  repositories.Executor
	models    map[string]*entities.Model
	order     []string
	relations map[string]map[string]*relation.Relation
}

// NewRegistry creates an empty registry whose relations run against executor
func NewRegistry(executor repositories.Executor) *Registry {
	return &Registry{
		executor:  executor,
		models:    make(map[string]*entities.Model),
		relations: make(map[string]map[string]*relation.Relation),
	}
}

// Executor returns the executor relations are bound to
func (r *Registry) Executor() repositories.Executor {
	return r.executor
}

// staged is the lookup used while a batch is resolved: registered models plus the batch
type staged map[string]*entities.Model

func (s staged) Model(name string) (*entities.Model, bool) {
	m, ok := s[name]
	return m, ok
}

// Register validates the models, resolves every declared relation and makes
// them visible. Nothing is registered when any model or relation is invalid.
// Models of one batch may reference each other.
func (r *Registry) Register(models ...*entities.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lookup := make(staged, len(r.models)+len(models))
	for name, m := range r.models {
		lookup[name] = m
	}
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return err
		}
		if _, exists := lookup[m.Name]; exists {
			return &entities.ConfigurationError{Model: m.Name, Reason: "model is already registered"}
		}
		lookup[m.Name] = m
	}

	resolved := make(map[string]map[string]*relation.Relation, len(models))
	for _, m := range models {
		byName := make(map[string]*relation.Relation, len(m.Relations))
		for _, mapping := range m.Relations {
			rel, err := relation.Resolve(m, mapping, lookup, r.executor)
			if err != nil {
				return err
			}
			byName[mapping.Name] = rel
		}
		resolved[m.Name] = byName
	}

	for _, m := range models {
		r.models[m.Name] = m
		r.order = append(r.order, m.Name)
		r.relations[m.Name] = resolved[m.Name]
	}
	return nil
}

// Model returns a registered model by name
func (r *Registry) Model(name string) (*entities.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	return m, ok
}

// Models returns the registered models in registration order
func (r *Registry) Models() []*entities.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Relation returns the resolved relation name of model.
// Unknown relations yield a *entities.RelationError.
func (r *Registry) Relation(model, name string) (*relation.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName, ok := r.relations[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	rel, ok := byName[name]
	if !ok {
		return nil, &entities.RelationError{Model: model, Relation: name}
	}
	return rel, nil
}

// Relations returns the resolved relations of model in declaration order
func (r *Registry) Relations(model string) ([]*relation.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	out := make([]*relation.Relation, 0, len(m.Relations))
	for _, mapping := range m.Relations {
		out = append(out, r.relations[model][mapping.Name])
	}
	return out, nil
}

// RelatedModel returns the name of the model relation points to
func (r *Registry) RelatedModel(model, relationName string) (string, error) {
	rel, err := r.Relation(model, relationName)
	if err != nil {
		return "", err
	}
	return rel.RelatedModel().Name, nil
}

// RelationNames returns the relation names of model in declaration order
func (r *Registry) RelationNames(model string) ([]string, error) {
	rels, err := r.Relations(model)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rels))
	for _, rel := range rels {
		names = append(names, rel.Name())
	}
	return names, nil
}
