package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/rehabscore/internal/cache"
	"github.com/panbanda/rehabscore/internal/output"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the compute result cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show the number, size, and age of cached results",
				Action: runCacheStatsCmd,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cached result",
				Action: runCacheClearCmd,
			},
		},
	}
}

// openCache opens the configured result cache; it is disabled when the
// config disables it or use is false.
func openCache(env *runtimeEnv, use bool) (*cache.Cache, error) {
	rc, err := cache.New(env.cfg.Cache.Dir, env.cfg.Cache.TTL, env.cfg.Cache.Enabled && use)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return rc, nil
}

func runCacheStatsCmd(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	rc, err := openCache(env, true)
	if err != nil {
		return err
	}
	stats, err := rc.GetStats()
	if err != nil {
		return err
	}

	formatter, err := env.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.NewTable("Result cache",
		[]string{"Directory", "Enabled", "Entries", "Bytes", "Oldest", "Newest"},
		[][]string{{
			env.cfg.Cache.Dir,
			strconv.FormatBool(rc.Enabled()),
			strconv.Itoa(stats.Entries),
			strconv.FormatInt(stats.TotalSize, 10),
			stats.OldestAge.Round(time.Second).String(),
			stats.NewestAge.Round(time.Second).String(),
		}}, stats))
}

func runCacheClearCmd(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	if !env.cfg.Cache.Enabled {
		color.Yellow("Cache is disabled in the configuration; nothing to clear")
		return nil
	}
	rc, err := openCache(env, true)
	if err != nil {
		return err
	}
	if err := rc.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	color.Green("Cleared %s", env.cfg.Cache.Dir)
	return nil
}
