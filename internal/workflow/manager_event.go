package workflow

import (
	"context"
	"strings"

	"defaulter/internal/logging"
	"defaulter/internal/rules"
	"defaulter/internal/services"
	"defaulter/internal/services/plex"
)

// Messages returned to webhook callers.
const (
	MessageNotRelevant = "Event not relevant"
	MessageProcessed   = "Webhook received and processed."
)

// HandleEvent applies the rules to the item named by a webhook event. An
// unknown library triggers one library refresh before the event is declared
// not relevant.
func (m *Manager) HandleEvent(ctx context.Context, ev Event) (EventResult, error) {
	if ev.Type == "" || ev.LibraryID == "" || ev.MediaID == "" {
		return EventResult{}, services.Wrap(services.ErrValidation, "workflow", "handle event",
			"type, libraryId and mediaId are required", nil)
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if err := m.ensurePrepared(ctx); err != nil {
		return EventResult{}, err
	}
	logger := m.logger.With(
		logging.String("event", ev.Type),
		logging.String("library_id", ev.LibraryID),
		logging.String("media_id", ev.MediaID),
	)
	logger.Info("webhook received; processing")

	lib, section, ok := m.libraryByKey(ev.LibraryID)
	if !ok {
		logger.Info("library not mapped; refreshing libraries")
		libraries, err := m.loadLibraries(ctx, 1)
		if err != nil {
			return EventResult{}, err
		}
		m.mu.Lock()
		m.libraries = libraries
		m.mu.Unlock()
		lib, section, ok = m.libraryByKey(ev.LibraryID)
		if !ok {
			logger.Info("library not in rules; ending request")
			return EventResult{Message: MessageNotRelevant}, nil
		}
	}

	var expandFn func(context.Context, string) ([]string, error)
	switch ev.Type {
	case EventMovie, EventEpisode:
		expandFn = func(_ context.Context, key string) ([]string, error) { return []string{key}, nil }
	case EventShow:
		expandFn = m.expandShow
	case EventSeason:
		expandFn = m.expandSeason
	default:
		logger.Info("event type not handled; ending request")
		return EventResult{Message: MessageNotRelevant}, nil
	}

	sess, runCtx, err := m.begin(ctx, ModeEvent, m.cfg.Run.DryRun, false)
	if err != nil {
		return EventResult{}, err
	}
	runCtx = services.WithLibrary(runCtx, section.Title)
	runErr := m.handleEvent(runCtx, sess, lib, section, ev.MediaID, expandFn)
	report, runErr := m.finish(runCtx, sess, runErr)
	if runErr != nil {
		return EventResult{Relevant: true, Report: report}, runErr
	}
	logger.Info("webhook finished")
	return EventResult{Relevant: true, Message: MessageProcessed, Report: report}, nil
}

func (m *Manager) handleEvent(ctx context.Context, sess *session, lib rules.LibraryFilters, section plex.Library, mediaID string, expandFn func(context.Context, string) ([]string, error)) error {
	members, err := m.membersWithAccess(ctx, lib, section)
	if err != nil {
		return err
	}
	keys, err := expandFn(ctx, mediaID)
	if err != nil {
		return err
	}
	return m.applyItems(ctx, sess, lib, section, members, keys)
}

func (m *Manager) libraryByKey(key string) (rules.LibraryFilters, plex.Library, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, lib := range m.rules.Libraries {
		section, ok := m.libraries[lib.Library]
		if ok && strings.TrimSpace(section.Key) == key {
			return lib, section, true
		}
	}
	return rules.LibraryFilters{}, plex.Library{}, false
}
