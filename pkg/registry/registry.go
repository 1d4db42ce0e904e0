// Package registry holds the immutable, versioned workflow templates and
// resolves the template that applies to a request.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/licensehub/pkg/condition"
	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/template"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrTemplateNotFound      = errors.New("template not found")
	ErrInvalidTemplate       = errors.New("invalid template")
	ErrTemplateVersionExists = errors.New("template version already registered")
	ErrPayloadInvalid        = errors.New("payload does not match template schema")
)

// IsTemplateNotFound checks if an error indicates no template applies.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

type versionKey struct {
	id      string
	version int
}

type bindingKey struct {
	requestType models.RequestType
	tier        models.Priority
}

// Registry is safe for concurrent readers. Registered templates are never
// modified; callers always receive copies.
type Registry struct {
	logger     *slog.Logger
	conditions *condition.Cache

	mu       sync.RWMutex
	versions map[string]map[int]*models.WorkflowTemplate
	latest   map[string]int
	bindings map[bindingKey]string
	schemas  map[versionKey]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger, conditions *condition.Cache) *Registry {
	if conditions == nil {
		conditions = condition.NewCache()
	}

	return &Registry{
		logger:     log,
		conditions: conditions,
		versions:   make(map[string]map[int]*models.WorkflowTemplate),
		latest:     make(map[string]int),
		bindings:   make(map[bindingKey]string),
		schemas:    make(map[versionKey]*gojsonschema.Schema),
	}
}

// Register validates tpl, compiles its step conditions and payload schema and
// makes it the latest version of its ID. A re-registered ID must carry a
// higher version; older versions stay reachable through ByID.
func (r *Registry) Register(tpl *models.WorkflowTemplate) error {
	if tpl == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}

	if err := tpl.Validate(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidTemplate, tpl.ID, err)
	}

	for _, step := range tpl.Steps {
		if err := r.conditions.Compile(step.Condition); err != nil {
			return fmt.Errorf("%w %q step %d: %w", ErrInvalidTemplate, tpl.ID, step.Number, err)
		}
	}

	if err := template.Parse(tpl.TitleTemplate); err != nil {
		return fmt.Errorf("%w %q: title: %w", ErrInvalidTemplate, tpl.ID, err)
	}

	var schema *gojsonschema.Schema

	if tpl.PayloadSchema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tpl.PayloadSchema))
		if err != nil {
			return fmt.Errorf("%w %q: payload schema: %w", ErrInvalidTemplate, tpl.ID, err)
		}

		schema = compiled
	}

	stored := tpl.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if latest, ok := r.latest[stored.ID]; ok && stored.Version <= latest {
		return fmt.Errorf("%w: %s v%d (latest is v%d)", ErrTemplateVersionExists, stored.ID, stored.Version, latest)
	}

	if r.versions[stored.ID] == nil {
		r.versions[stored.ID] = make(map[int]*models.WorkflowTemplate)
	} else {
		r.unbindPrevious(stored)
	}

	r.versions[stored.ID][stored.Version] = stored
	r.latest[stored.ID] = stored.Version

	if schema != nil {
		r.schemas[versionKey{id: stored.ID, version: stored.Version}] = schema
	}

	key := bindingKey{requestType: stored.Type, tier: stored.Priority}
	if previous, ok := r.bindings[key]; ok && previous != stored.ID {
		r.logger.Info("Template binding replaced",
			"request_type", stored.Type,
			"tier", stored.Priority,
			"previous_template_id", previous,
			"template_id", stored.ID,
		)
	}

	r.bindings[key] = stored.ID

	r.logger.Debug("Registered template",
		"template_id", stored.ID,
		"version", stored.Version,
		"request_type", stored.Type,
		"tier", stored.Priority,
		"steps", len(stored.Steps),
	)

	return nil
}

// Resolve returns the latest template bound to (requestType, priority), or
// the request type's tier-less default when no tier-specific one exists.
func (r *Registry) Resolve(requestType models.RequestType, priority models.Priority) (*models.WorkflowTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tpl := r.bound(requestType, priority); tpl != nil {
		return tpl.Clone(), nil
	}

	if tpl := r.bound(requestType, ""); tpl != nil {
		return tpl.Clone(), nil
	}

	return nil, fmt.Errorf("%w: request type %q priority %q", ErrTemplateNotFound, requestType, priority)
}

// bound returns the latest template bound to (requestType, tier) as long as
// it still declares that type and tier. Callers hold r.mu.
func (r *Registry) bound(requestType models.RequestType, tier models.Priority) *models.WorkflowTemplate {
	id, ok := r.bindings[bindingKey{requestType: requestType, tier: tier}]
	if !ok {
		return nil
	}

	tpl := r.versions[id][r.latest[id]]
	if tpl == nil || tpl.Type != requestType || tpl.Priority != tier {
		return nil
	}

	return tpl
}

// unbindPrevious drops the binding of the current latest version of
// next.ID when next moves the template to another type or tier. Callers
// hold r.mu for writing.
func (r *Registry) unbindPrevious(next *models.WorkflowTemplate) {
	previous := r.versions[next.ID][r.latest[next.ID]]
	if previous == nil || (previous.Type == next.Type && previous.Priority == next.Priority) {
		return
	}

	key := bindingKey{requestType: previous.Type, tier: previous.Priority}
	if r.bindings[key] != next.ID {
		return
	}

	delete(r.bindings, key)

	r.logger.Info("Template binding moved",
		"template_id", next.ID,
		"previous_request_type", previous.Type,
		"previous_tier", previous.Priority,
		"request_type", next.Type,
		"tier", next.Priority,
	)
}

// ByID returns a specific template version.
func (r *Registry) ByID(id string, version int) (*models.WorkflowTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.versions[id][version]
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrTemplateNotFound, id, version)
	}

	return tpl.Clone(), nil
}

// ValidatePayload checks payload against the compiled schema of tpl. Templates
// without a schema accept any payload.
func (r *Registry) ValidatePayload(tpl *models.WorkflowTemplate, payload map[string]any) error {
	r.mu.RLock()
	schema := r.schemas[versionKey{id: tpl.ID, version: tpl.Version}]
	r.mu.RUnlock()

	if schema == nil {
		return nil
	}

	if payload == nil {
		payload = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPayloadInvalid, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		problems = append(problems, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrPayloadInvalid, strings.Join(problems, "; "))
}

// Templates returns the latest version of every registered template, sorted by ID.
func (r *Registry) Templates() []*models.WorkflowTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates := make([]*models.WorkflowTemplate, 0, len(r.latest))
	for id, version := range r.latest {
		templates = append(templates, r.versions[id][version].Clone())
	}

	slices.SortFunc(templates, func(a, b *models.WorkflowTemplate) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return templates
}

// HealthCheck reports whether every request type has a default template.
func (r *Registry) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string

	for _, requestType := range models.RequestTypes {
		if _, ok := r.bindings[bindingKey{requestType: requestType}]; !ok {
			missing = append(missing, string(requestType))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("no default template for %v", missing)
	}

	return nil
}
