package main

import (
	"fmt"
	"io"

	"github.com/always-cache/shellcache"
	"github.com/always-cache/shellcache/cache"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List the cache partitions and their entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := getConfig(configFilenameFlag)
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(dbFilenameFlag)
		if err != nil {
			return err
		}
		defer closeStore()
		return listPartitions(cmd.OutOrStdout(), store, config.engineConfig(log.Logger))
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all partitions not belonging to the configured version",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := getConfig(configFilenameFlag)
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(dbFilenameFlag)
		if err != nil {
			return err
		}
		defer closeStore()

		engine, err := shellcache.New(config.engineConfig(log.Logger), store, nil)
		if err != nil {
			return err
		}
		if err := engine.Upgrade(cmd.Context()); err != nil {
			return err
		}
		return listPartitions(cmd.OutOrStdout(), store, engine.Config())
	},
}

// listPartitions prints one line per partition, marking the ones in use by
// the configured version, followed by the number of entries and their size.
func listPartitions(w io.Writer, store cache.Store, cfg shellcache.Config) error {
	names, err := store.Names()
	if err != nil {
		return err
	}
	current := map[string]bool{
		cfg.PrecacheName(): true,
		cfg.RuntimeName():  true,
	}
	for _, name := range names {
		p, err := store.Open(name)
		if err != nil {
			return err
		}
		keys, err := p.Keys()
		if err != nil {
			return fmt.Errorf("could not list %s: %w", name, err)
		}
		var size int
		for _, key := range keys {
			entry, found, err := p.Match(key, cache.MatchOptions{})
			if err != nil {
				return fmt.Errorf("could not read %s: %w", key, err)
			}
			if found {
				size += len(entry.Bytes)
			}
		}
		marker := " "
		if current[name] {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\t%d\t%s\n", marker, name, len(keys), humanize.Bytes(uint64(size)))
	}
	return nil
}
