package viewers

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"defaulter/internal/logging"
	"defaulter/internal/rules"
)

// GroupDigest summarizes one library group's membership at startup.
type GroupDigest struct {
	Library  string   `json:"library"`
	Group    string   `json:"group"`
	Members  []string `json:"members"`
	Resolved []string `json:"resolved"`
	Missing  []string `json:"missing"`
}

// Digest computes the membership overview for every library group.
func Digest(set *rules.Set, reg *Registry) []GroupDigest {
	if set == nil {
		return nil
	}
	var out []GroupDigest
	for _, lib := range set.Libraries {
		for _, gf := range lib.Groups {
			d := GroupDigest{Library: lib.Library, Group: gf.Group, Members: Members(set, gf.Group, reg)}
			for _, member := range d.Members {
				if _, ok := reg.Lookup(member); ok {
					d.Resolved = append(d.Resolved, member)
				} else {
					d.Missing = append(d.Missing, member)
				}
			}
			out = append(out, d)
		}
	}
	return out
}

// Reporter logs startup digests. Missing-token warnings are emitted once per
// group and viewer for the reporter's lifetime.
type Reporter struct {
	logger *slog.Logger

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewReporter returns a Reporter logging through logger.
func NewReporter(logger *slog.Logger) *Reporter {
	return &Reporter{
		logger: logging.NewComponentLogger(logger, "viewers"),
		warned: make(map[string]struct{}),
	}
}

// LogDigest writes one line per library group and a warning per viewer
// without a token.
func (r *Reporter) LogDigest(digests []GroupDigest) {
	for _, d := range digests {
		memberList := "none"
		if len(d.Resolved) > 0 {
			memberList = strings.Join(d.Resolved, ", ")
		}
		attrs := []logging.Attr{
			logging.String(logging.FieldLibrary, d.Library),
			logging.String(logging.FieldGroup, d.Group),
			logging.String("members", memberList),
			logging.String("tokens_resolved", fmt.Sprintf("%d/%d", len(d.Resolved), len(d.Members))),
			logging.String(logging.FieldEventType, "group_digest"),
		}
		if len(d.Missing) > 0 {
			attrs = append(attrs, logging.String("missing_tokens", strings.Join(d.Missing, ", ")))
		}
		r.logger.Info("group digest", logging.Args(attrs...)...)

		for _, member := range d.Missing {
			if !r.firstWarning(d.Group + "|" + member) {
				continue
			}
			logging.WarnWithContext(r.logger, "no token for viewer; updates will be skipped", "viewer_token_missing",
				logging.String("viewer", member),
				logging.String(logging.FieldGroup, d.Group),
				logging.String(logging.FieldErrorHint, "share the server with this user or add them under [managed_users]"),
				logging.String(logging.FieldImpact, "default tracks are not set for this viewer"),
			)
		}
	}
}

func (r *Reporter) firstWarning(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.warned[key]; ok {
		return false
	}
	r.warned[key] = struct{}{}
	return true
}

// LogOwnerSafety tells the operator whether the owner's own defaults will be
// touched.
func (r *Reporter) LogOwnerSafety(set *rules.Set, owner string) {
	if owner == "" {
		return
	}
	groups := set.GroupsContaining(owner)
	if len(groups) == 0 {
		r.logger.Info("owner is not included in any group; no owner updates will be performed",
			logging.String("owner", owner),
			logging.String(logging.FieldEventType, "owner_safety"),
		)
		return
	}
	logging.WarnWithContext(r.logger, "owner appears in groups; proceeding per rules", "owner_safety",
		logging.String("owner", owner),
		logging.String("groups", strings.Join(groups, ", ")),
		logging.String(logging.FieldErrorHint, "remove the owner from these groups to leave the owner's defaults alone"),
		logging.String(logging.FieldImpact, "the owner's default tracks will be changed"),
	)
}

// WarnSharedTokens flags viewers that act through one token. Plex stores
// defaults per account, so an update for one of them changes the others.
func (r *Reporter) WarnSharedTokens(reg *Registry) {
	for _, viewers := range reg.SharedTokens() {
		token, _ := reg.Lookup(viewers[0])
		logging.WarnWithContext(r.logger, "viewers share the same Plex token", "shared_token",
			logging.String("viewers", strings.Join(viewers, ", ")),
			logging.String("token", logging.MaskToken(token)),
			logging.String(logging.FieldErrorHint, "give each profile its own token if their defaults should differ"),
			logging.String(logging.FieldImpact, "updates for one profile affect the others"),
		)
	}
}
