package session

import (
	"context"

	"github.com/dmitrijs2005/mzexplorer/internal/client/config"
)

// Mutations follow one discipline: the session-local override is updated
// optimistically, a reload confirms or corrects it, and on a failed reload
// the override is reverted so readers keep the last-good, consistent
// environment. The error is surfaced to the caller either way.

// SetProfile selects another stored profile and rebuilds the whole context
// for it: credentials, region, pool, environment.
func (s *Session) SetProfile(ctx context.Context, name string) error {
	if err := s.store.SetProfile(name); err != nil {
		return err
	}
	return s.LoadContext(ctx)
}

// SetDatabase switches the session database. The schema override is
// cleared: the new database's default search path applies until SetSchema
// narrows it again.
func (s *Session) SetDatabase(ctx context.Context, name string) error {
	p, err := s.override(func(p *config.Profile) {
		p.Database = name
		p.Schema = ""
	})
	if err != nil {
		return err
	}
	prevDatabase, prevSchema := p.prev.Database, p.prev.Schema

	if err := s.reload(ctx, false); err != nil {
		s.revert(p.ptr, func(p *config.Profile) {
			p.Database, p.Schema = prevDatabase, prevSchema
		})
		return err
	}
	return nil
}

// SetCluster switches the session cluster. The environment reports the new
// cluster only once the reload's SHOW CLUSTER confirms it.
func (s *Session) SetCluster(ctx context.Context, name string) error {
	p, err := s.override(func(p *config.Profile) {
		p.Cluster = name
	})
	if err != nil {
		return err
	}
	prevCluster := p.prev.Cluster

	if err := s.reload(ctx, false); err != nil {
		s.revert(p.ptr, func(p *config.Profile) {
			p.Cluster = prevCluster
		})
		return err
	}
	return nil
}

// SetSchema switches the session schema. Only the schema-related discovery
// queries are re-issued; the rest of the environment carries over.
func (s *Session) SetSchema(ctx context.Context, name string) error {
	p, err := s.override(func(p *config.Profile) {
		p.Schema = name
	})
	if err != nil {
		return err
	}
	prevSchema := p.prev.Schema

	if err := s.reload(ctx, true); err != nil {
		s.revert(p.ptr, func(p *config.Profile) {
			p.Schema = prevSchema
		})
		return err
	}
	return nil
}

type overridden struct {
	ptr  *config.Profile
	prev config.Profile
}

// override applies an optimistic session-local change to the active
// profile and remembers what it looked like before.
func (s *Session) override(apply func(*config.Profile)) (overridden, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return overridden{}, ErrUnconfiguredProfile
	}
	o := overridden{ptr: s.profile, prev: *s.profile}
	apply(s.profile)
	return o, nil
}

// revert undoes an optimistic override after a failed reload, unless the
// profile has been replaced by a switch that happened meanwhile.
func (s *Session) revert(ptr *config.Profile, restore func(*config.Profile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == ptr {
		restore(ptr)
	}
}
