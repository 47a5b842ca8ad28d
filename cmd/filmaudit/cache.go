package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/cache"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the digest cache",
	Long: `Commands for managing the digest cache.

The cache keeps each file's MD5 digest keyed by path, size, and modification
time, so a resumed audit does not re-hash files that have not changed.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [path-prefix]",
	Short: "Remove cached digests",
	Long:  `Removes cached digests, all of them or only those under a path prefix.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		prefix := ""
		if len(args) > 0 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("failed to resolve path: %w", err)
			}
			prefix = abs
		}
		return withDigestCache(func(dc *cache.DigestCache) error {
			n, err := dc.Clear(checksum.Algorithm, prefix)
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			printInfo("Removed %d cached digests.", n)
			return nil
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withDigestCache(func(dc *cache.DigestCache) error {
			n, err := dc.Len(checksum.Algorithm)
			if err != nil {
				return fmt.Errorf("failed to count cache entries: %w", err)
			}
			fmt.Printf("Cached digests: %d\n", n)
			return nil
		})
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.Hash.CachePath)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

func withDigestCache(fn func(*cache.DigestCache) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Hash.CachePath
	if path == "" {
		path = config.DefaultCachePath()
	}
	dc, err := cache.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	defer dc.Close()
	fmt.Printf("Cache location: %s\n", path)
	return fn(dc)
}
