// Package moderation decides whether an incoming activity may be processed.
package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/google/uuid"
)

// BlockReader lists moderation rules by scope.
type BlockReader interface {
	ReadBlocks(ctx context.Context, scope uuid.UUID) ([]domain.Block, error)
}

// Reason names the rule that blocked an activity.
type Reason struct {
	Scope uuid.UUID // uuid.Nil for site-wide rules
	Kind  domain.BlockKind
	Value string
}

func (r Reason) String() string {
	if r.Kind == "" {
		return ""
	}
	scope := "site"
	if r.Scope != uuid.Nil {
		scope = r.Scope.String()
	}
	return fmt.Sprintf("%s %s block %q", scope, r.Kind, r.Value)
}

// Gate evaluates activities against site-wide and per-recipient block lists.
type Gate struct {
	store    BlockReader
	domains  []string
	keywords []string
}

// NewGate returns a gate using the stored rules plus the site-wide domain and
// keyword lists from configuration.
func NewGate(store BlockReader, blockedDomains, blockedKeywords []string) *Gate {
	return &Gate{
		store:    store,
		domains:  normalize(blockedDomains),
		keywords: normalize(blockedKeywords),
	}
}

// IsBlocked checks, in order, site-wide domain, actor and keyword rules and
// then the same rules of recipient when one is given. The first match wins.
func (g *Gate) IsBlocked(ctx context.Context, activity *vocab.Activity, recipient *uuid.UUID) (bool, Reason, error) {
	subject := newSubject(activity)

	site, err := g.rules(ctx, uuid.Nil)
	if err != nil {
		return false, Reason{}, err
	}
	site = append(site, configured(domain.BlockDomain, g.domains)...)
	site = append(site, configured(domain.BlockKeyword, g.keywords)...)
	if r, ok := subject.match(site); ok {
		return true, r, nil
	}

	if recipient == nil || *recipient == uuid.Nil {
		return false, Reason{}, nil
	}
	personal, err := g.rules(ctx, *recipient)
	if err != nil {
		return false, Reason{}, err
	}
	if r, ok := subject.match(personal); ok {
		return true, r, nil
	}
	return false, Reason{}, nil
}

func (g *Gate) rules(ctx context.Context, scope uuid.UUID) ([]domain.Block, error) {
	if g.store == nil {
		return nil, nil
	}
	blocks, err := g.store.ReadBlocks(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	return blocks, nil
}

func configured(kind domain.BlockKind, values []string) []domain.Block {
	out := make([]domain.Block, 0, len(values))
	for _, v := range values {
		out = append(out, domain.Block{Kind: kind, Value: v})
	}
	return out
}

// subject is the activity projected onto what rules match against.
type subject struct {
	host  string
	actor string
	text  string
}

func newSubject(a *vocab.Activity) subject {
	s := subject{
		host:  vocab.Host(a.Actor()),
		actor: vocab.CanonicalURI(a.Actor()),
	}
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(vocab.Encode(a, false)); err == nil {
		s.text = strings.ToLower(b.String())
	}
	return s
}

// match walks the rules kind by kind: domain, then actor, then keyword.
func (s subject) match(rules []domain.Block) (Reason, bool) {
	for _, kind := range []domain.BlockKind{domain.BlockDomain, domain.BlockActor, domain.BlockKeyword} {
		for _, r := range rules {
			if r.Kind != kind || r.Value == "" {
				continue
			}
			if s.matches(r) {
				return Reason{Scope: r.Scope, Kind: r.Kind, Value: r.Value}, true
			}
		}
	}
	return Reason{}, false
}

func (s subject) matches(r domain.Block) bool {
	switch r.Kind {
	case domain.BlockDomain:
		return MatchDomain(s.host, r.Value)
	case domain.BlockActor:
		return s.actor != "" && strings.EqualFold(s.actor, vocab.CanonicalURI(r.Value))
	case domain.BlockKeyword:
		return s.text != "" && strings.Contains(s.text, strings.ToLower(r.Value))
	}
	return false
}

// MatchDomain reports whether host is blocked by a rule for blocked,
// subdomains included.
func MatchDomain(host, blocked string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	blocked = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(blocked), "*."))
	if host == "" || blocked == "" {
		return false
	}
	return host == blocked || strings.HasSuffix(host, "."+blocked)
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
