package shellcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPrefix         = "shellcache"
	DefaultShellPath      = "/index.html"
	DefaultSyncTag        = "sync-offline-data"
	DefaultOfflineMessage = "You are offline. Changes will be synced once you are back online."
)

// Config is fixed for the lifetime of an engine.
// Changing Version makes all partitions of the previous version stale.
type Config struct {
	// Origin is the scheme and host the engine controls, e.g. "https://app.example".
	// Requests to any other origin are passed through.
	Origin string
	// Version identifies the deployed build. It is part of every partition name.
	Version string
	// Prefix of the partition names. Defaults to DefaultPrefix.
	Prefix string
	// ShellAssets are the paths fetched into the precache on install.
	ShellAssets []string
	// BackendHost is matched as a substring against the request hostname.
	// Matching requests are never cached. Empty disables the rule.
	BackendHost string
	// ShellPath is the document served when offline. Defaults to DefaultShellPath.
	ShellPath string
	// OfflineMessage is sent in the error field of the backend offline notice.
	OfflineMessage string
	// SyncTag is the background sync tag that triggers OnSync.
	SyncTag string
	// NavigationPreload lets navigation fetches start before the request is routed.
	NavigationPreload bool
	// NetworkTimeout limits each network fetch made by a strategy. Zero means no limit.
	NetworkTimeout time.Duration
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// OnSync reconciles offline data. The default only logs.
	OnSync func(ctx context.Context) error
}

// PrecacheName returns the name of the precache partition for the configured version.
func (c Config) PrecacheName() string {
	return c.prefix() + "-precache-" + c.Version
}

// RuntimeName returns the name of the runtime partition for the configured version.
func (c Config) RuntimeName() string {
	return c.prefix() + "-runtime-" + c.Version
}

func (c Config) prefix() string {
	if c.Prefix == "" {
		return DefaultPrefix
	}
	return c.Prefix
}

// Validate checks that the configuration can be used to create an engine.
func (c Config) Validate() error {
	var errs []error
	origin, err := url.Parse(c.Origin)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid origin: %w", err))
	} else if origin.Scheme == "" || origin.Host == "" {
		errs = append(errs, fmt.Errorf("origin must be absolute, got %q", c.Origin))
	}
	if c.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if strings.ContainsAny(c.Version, " \t\n") {
		errs = append(errs, fmt.Errorf("version must not contain whitespace, got %q", c.Version))
	}
	for _, asset := range c.ShellAssets {
		if u, err := url.Parse(asset); err != nil || u.IsAbs() {
			errs = append(errs, fmt.Errorf("shell asset must be a path, got %q", asset))
		}
	}
	if c.NetworkTimeout < 0 {
		errs = append(errs, fmt.Errorf("network timeout must not be negative, got %s", c.NetworkTimeout))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	c.Prefix = c.prefix()
	if c.ShellPath == "" {
		c.ShellPath = DefaultShellPath
	}
	if c.OfflineMessage == "" {
		c.OfflineMessage = DefaultOfflineMessage
	}
	if c.SyncTag == "" {
		c.SyncTag = DefaultSyncTag
	}
	return c
}
