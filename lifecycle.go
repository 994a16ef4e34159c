package shellcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/always-cache/shellcache/cache"
)

// Bootstrap opens the precache partition and fills it with fresh copies of
// the shell assets, fetched concurrently. Assets that could not be fetched
// are reported in the returned error, the others are stored regardless.
func (e *Engine) Bootstrap(ctx context.Context) error {
	precache, err := e.store.Open(e.cfg.PrecacheName())
	if err != nil {
		return fmt.Errorf("could not open precache: %w", err)
	}

	errs := make([]error, len(e.cfg.ShellAssets))
	var wg sync.WaitGroup
	for i, asset := range e.cfg.ShellAssets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.precacheAsset(ctx, precache, asset)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (e *Engine) precacheAsset(ctx context.Context, p cache.Partition, asset string) error {
	u, err := e.resolve(asset)
	if err != nil {
		return fmt.Errorf("invalid asset %s: %w", asset, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("could not create request for %s: %w", asset, err)
	}
	l := e.fetchNetwork(ctx, req, true)
	if !l.ok() {
		return fmt.Errorf("could not fetch %s: %w", asset, l.err)
	}
	if !e.cacheable(l.res) {
		return fmt.Errorf("could not precache %s (status %d): %w", asset, l.res.StatusCode, ErrNotCacheable)
	}
	if err := e.put(p, req, l); err != nil {
		return fmt.Errorf("could not store %s: %w", asset, err)
	}
	e.log.Trace().Str("asset", asset).Str("partition", p.Name()).Msg("Precached")
	return nil
}

// Upgrade deletes every partition that does not belong to the configured
// version, then opens the precache and runtime partitions of this version.
// Deletions run concurrently; a failed deletion is logged and does not stop
// the others.
func (e *Engine) Upgrade(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names, err := e.store.Names()
	if err != nil {
		return fmt.Errorf("could not list partitions: %w", err)
	}

	current := map[string]bool{
		e.cfg.PrecacheName(): true,
		e.cfg.RuntimeName():  true,
	}
	var wg sync.WaitGroup
	for _, name := range names {
		if current[name] {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.store.Delete(name); err != nil {
				e.log.Warn().Err(err).Str("partition", name).Msg("Could not delete stale partition")
				return
			}
			e.log.Debug().Str("partition", name).Msg("Deleted stale partition")
		}()
	}
	wg.Wait()

	precache, err := e.store.Open(e.cfg.PrecacheName())
	if err != nil {
		return fmt.Errorf("could not open precache: %w", err)
	}
	runtime, err := e.store.Open(e.cfg.RuntimeName())
	if err != nil {
		return fmt.Errorf("could not open runtime partition: %w", err)
	}
	e.mu.Lock()
	e.precache, e.runtime = precache, runtime
	e.mu.Unlock()
	return nil
}

func (e *Engine) handleInstall(ctx context.Context, ev *Event) (*Outcome, error) {
	e.log.Info().Int("assets", len(e.cfg.ShellAssets)).Msg("Installing")
	if err := e.Bootstrap(ctx); err != nil {
		// a partial precache is acceptable, the runtime partition fills the gaps
		e.log.Warn().Err(err).Msg("Precache incomplete")
	}
	e.mu.Lock()
	if e.state == stateNew {
		e.state = stateInstalled
	}
	e.mu.Unlock()
	return nil, nil
}

// handleActivate runs the upgrade behind the activation barrier: fetch events
// dispatched meanwhile wait until it is done.
func (e *Engine) handleActivate(ctx context.Context, ev *Event) (*Outcome, error) {
	e.mu.Lock()
	if e.state == stateActivating {
		barrier := e.barrier
		e.mu.Unlock()
		select {
		case <-barrier:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.state = stateActivating
	e.barrier = make(chan struct{})
	barrier := e.barrier
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.state = stateActive
		e.preload = e.cfg.NavigationPreload
		e.mu.Unlock()
		close(barrier)
	}()

	if err := e.Upgrade(ctx); err != nil {
		e.log.Error().Err(err).Msg("Upgrade failed")
	}
	e.log.Info().
		Str("precache", e.cfg.PrecacheName()).
		Str("runtime", e.cfg.RuntimeName()).
		Bool("navigationPreload", e.cfg.NavigationPreload).
		Msg("Activated and controlling requests")
	return nil, nil
}
