package viewers

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"defaulter/internal/rules"
)

// Account is one viewer and the token that acts as them.
type Account struct {
	Name  string
	Token string
}

// Registry maps viewer names to tokens in insertion order. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	owner  string
	order  []string
	tokens map[string]string
}

// NewRegistry returns an empty registry for a server owned by owner.
func NewRegistry(owner string) *Registry {
	return &Registry{owner: owner, tokens: make(map[string]string)}
}

// Build assembles the session registry. Shared users are kept only when a
// group names them or uses $ALL; managed users and the owner are always
// added, managed users in name order.
func Build(set *rules.Set, owner Account, shared []Account, managed map[string]string) *Registry {
	reg := NewRegistry(owner.Name)
	wanted, all := listedViewers(set)
	for _, account := range shared {
		if _, ok := wanted[account.Name]; ok || all {
			reg.Set(account.Name, account.Token)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(managed)) {
		if token := managed[name]; name != "" && token != "" {
			reg.Set(name, token)
		}
	}
	if owner.Name != "" && owner.Token != "" {
		reg.Set(owner.Name, owner.Token)
	}
	return reg
}

func listedViewers(set *rules.Set) (map[string]struct{}, bool) {
	wanted := make(map[string]struct{})
	all := false
	if set == nil {
		return wanted, all
	}
	for _, group := range set.Groups {
		for _, member := range group.Members {
			if member == rules.AllViewers {
				all = true
				continue
			}
			wanted[member] = struct{}{}
		}
	}
	return wanted, all
}

// Set records or replaces a viewer's token.
func (r *Registry) Set(viewer, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[viewer]; !ok {
		r.order = append(r.order, viewer)
	}
	r.tokens[viewer] = token
}

// Lookup returns the viewer's token. Unknown viewers and blank tokens are
// reported as absent.
func (r *Registry) Lookup(viewer string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[viewer]
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

// Has reports whether the viewer is known, with or without a token.
func (r *Registry) Has(viewer string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[viewer]
	return ok
}

// Viewers lists known viewers in insertion order.
func (r *Registry) Viewers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Owner returns the server owner's viewer name.
func (r *Registry) Owner() string {
	return r.owner
}

// Len returns the number of known viewers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// SharedTokens groups viewers that share one token. Only groups of two or
// more are returned, in order of first appearance.
func (r *Registry) SharedTokens() [][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byToken := make(map[string][]string)
	var tokens []string
	for _, viewer := range r.order {
		token := strings.TrimSpace(r.tokens[viewer])
		if token == "" {
			continue
		}
		if _, ok := byToken[token]; !ok {
			tokens = append(tokens, token)
		}
		byToken[token] = append(byToken[token], viewer)
	}
	var out [][]string
	for _, token := range tokens {
		if len(byToken[token]) > 1 {
			out = append(out, byToken[token])
		}
	}
	return out
}

// Members expands a group into viewer names. $ALL contributes every known
// viewer except the owner, unless the group also lists the owner by name.
// Explicit members are kept even without a token so their updates are
// audited as skipped. The result is deduplicated.
func Members(set *rules.Set, group string, reg *Registry) []string {
	configured, _ := set.Members(group)
	owner := ""
	if reg != nil {
		owner = reg.Owner()
	}
	ownerListed := owner != "" && slices.Contains(configured, owner)
	expand := slices.Contains(configured, rules.AllViewers)

	seen := make(map[string]struct{})
	var members []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		members = append(members, name)
	}
	if expand && reg != nil {
		for _, viewer := range reg.Viewers() {
			if viewer == owner && !ownerListed {
				continue
			}
			add(viewer)
		}
	}
	for _, member := range configured {
		if member == rules.AllViewers {
			continue
		}
		add(member)
	}
	return members
}
