package template

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"sync"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/pkg/coordination"
)

// Manager loads templates from a source and applies them to the
// coordination store.
type Manager struct {
	source Source
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates a manager over the given source. Call Load before
// looking templates up.
func NewManager(source Source) *Manager {
	return &Manager{
		source:    source,
		logger:    logger.With("component", "template_manager"),
		templates: make(map[string]*Template),
	}
}

// Load reads, parses and validates every template in the source, replacing
// the previously loaded set. A template whose descriptor is invalid or whose
// initializers reference files missing from its tree fails the whole load.
func (m *Manager) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids, err := m.source.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	loaded := make(map[string]*Template, len(ids))
	for _, id := range ids {
		tmpl, err := m.loadTemplate(ctx, id)
		if err != nil {
			return err
		}
		loaded[id] = tmpl

		m.logger.Info("Loaded template",
			"template_id", tmpl.ID,
			"name", tmpl.Name,
			"files", len(tmpl.Files),
			"scripts", tmpl.ScriptCount(),
		)
	}

	m.mu.Lock()
	m.templates = loaded
	m.mu.Unlock()

	m.logger.Info("Template load complete", "count", len(loaded))
	return nil
}

// Template returns the loaded template with the given id.
func (m *Manager) Template(id string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tmpl, nil
}

// Templates returns all loaded templates sorted by id.
func (m *Manager) Templates() []*Template {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.templates))
	for id := range m.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.templates[id])
	}
	return out
}

// CopyContents writes every file of the template's tree into the
// coordination store under destPath/<templateId>/<relPath>. Copying over an
// existing tree overwrites it; the operation is safe to repeat.
func (m *Manager) CopyContents(ctx context.Context, store coordination.Store, templateID, destPath string) error {
	if _, err := m.Template(templateID); err != nil {
		return err
	}

	count := 0
	err := m.source.Walk(ctx, templateID, func(relPath string, content []byte) error {
		nodePath := path.Join(destPath, templateID, relPath)
		if err := store.Write(ctx, nodePath, content); err != nil {
			return fmt.Errorf("failed to copy template file %s: %w", relPath, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("Copied template contents",
		"template_id", templateID,
		"dest", destPath,
		"files", count,
	)
	return nil
}

// Initialize runs the template's initializers against the registered
// subsystem loaders. Script bytes are read from the coordination store under
// destPath/<templateId>/, i.e. from the tree CopyContents just wrote:
// every process initializes from the copied bytes, not from its local
// source.
//
// Initializers run in declared order; within one initializer, scripts load
// in declared order, exactly one load call per script. All subsystem names
// are resolved against the registry before the first load, so an unknown
// subsystem fails the operation without any side effects.
func (m *Manager) Initialize(ctx context.Context, store coordination.Store, templateID, destPath string, registry *Registry) error {
	tmpl, err := m.Template(templateID)
	if err != nil {
		return err
	}

	loaders := make([]Loader, len(tmpl.Initializers))
	for i, init := range tmpl.Initializers {
		loader, ok := registry.Loader(init.Subsystem)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSubsystem, init.Subsystem)
		}
		loaders[i] = loader
	}

	for i, init := range tmpl.Initializers {
		for _, script := range init.Scripts {
			nodePath := path.Join(destPath, templateID, script)
			content, err := store.Read(ctx, nodePath)
			if err != nil {
				return fmt.Errorf("failed to read initializer script %s: %w", nodePath, err)
			}

			if err := loaders[i].LoadScript(ctx, script, content); err != nil {
				return fmt.Errorf("subsystem %s: failed to load script %s: %w", init.Subsystem, script, err)
			}

			m.logger.Debug("Loaded initializer script",
				"template_id", templateID,
				"subsystem", init.Subsystem,
				"script", script,
			)
		}
	}

	m.logger.Info("Template initializers complete",
		"template_id", templateID,
		"dest", destPath,
		"subsystems", len(tmpl.Initializers),
		"scripts", tmpl.ScriptCount(),
	)
	return nil
}

// loadTemplate reads one template's descriptor and file list and
// cross-checks them.
func (m *Manager) loadTemplate(ctx context.Context, id string) (*Template, error) {
	data, err := m.readDescriptor(ctx, id)
	if err != nil {
		return nil, err
	}

	desc, err := ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}
	if desc.ID != id {
		return nil, fmt.Errorf("template %s: %w: descriptor id %q does not match directory name",
			id, ErrInvalidDescriptor, desc.ID)
	}

	var files []string
	err = m.source.Walk(ctx, id, func(relPath string, _ []byte) error {
		files = append(files, relPath)
		return nil
	})
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	for _, init := range desc.Initializers {
		for _, script := range init.Scripts {
			if !present[script] {
				return nil, fmt.Errorf("template %s: %w: initializer %s references missing script %s",
					id, ErrInvalidDescriptor, init.Subsystem, script)
			}
		}
	}

	return &Template{
		ID:           desc.ID,
		Name:         desc.Name,
		Initializers: desc.Initializers,
		Files:        files,
	}, nil
}

// readDescriptor probes the known descriptor file names at the template
// root.
func (m *Manager) readDescriptor(ctx context.Context, id string) ([]byte, error) {
	for _, name := range descriptorNames {
		data, err := m.source.ReadFile(ctx, id, name)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("template %s: %w: no descriptor file found (tried %v)",
		id, ErrInvalidDescriptor, descriptorNames)
}
