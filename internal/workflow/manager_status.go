package workflow

import (
	"context"
	"slices"

	"defaulter/internal/selection"
	"defaulter/internal/services"
)

// Status returns the latest session information.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := Status{
		Prepared: m.prepared,
		Running:  m.running,
		Current:  m.stats.Snapshot(),
	}
	if m.registry != nil {
		status.Viewers = m.registry.Len()
	}
	for name := range m.libraries {
		status.Libraries = append(status.Libraries, name)
	}
	slices.Sort(status.Libraries)
	if m.lastRun != nil {
		copy := *m.lastRun
		status.LastRun = &copy
	}
	return status
}

// GroupPreview is the plan one group would receive for an item.
type GroupPreview struct {
	Library string          `json:"library"`
	Group   string          `json:"group"`
	Plan    *selection.Plan `json:"plan,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Preview is a dry evaluation of one item against every configured library.
type Preview struct {
	Part   selection.Part `json:"part"`
	Groups []GroupPreview `json:"groups"`
}

// Preview fetches one item and resolves it for every group without applying
// anything. An empty library evaluates every configured library.
func (m *Manager) Preview(ctx context.Context, ratingKey, library string) (*Preview, error) {
	if ratingKey == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "preview", "rating key is required", nil)
	}
	part, err := m.source.Part(ctx, ratingKey)
	if err != nil {
		return nil, err
	}
	preview := &Preview{Part: part}
	for _, lib := range m.rules.Libraries {
		if library != "" && lib.Library != library {
			continue
		}
		for _, gf := range lib.Groups {
			entry := GroupPreview{Library: lib.Library, Group: gf.Group}
			plan, err := m.resolver.Resolve(part, gf.Filter)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Plan = plan
			}
			preview.Groups = append(preview.Groups, entry)
		}
	}
	if library != "" && len(preview.Groups) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "preview", "library "+library+" not in rules", nil)
	}
	return preview, nil
}
