// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/heliosrules/helios"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <rules.json>",
		Short: "Compile a rule file, then hot-reload it on every write",
		Long: "watch demonstrates the atomic model-swap contract from outside the\n" +
			"engine: it holds one long-lived Engine and calls Reload whenever the\n" +
			"rules file changes on disk, without ever stopping in-flight Evaluate\n" +
			"calls against the model being replaced.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0])
		},
	}
	return cmd
}

func runWatch(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	rules, err := helios.ParseRules(data)
	if err != nil {
		printCompileErrors(err)
		return err
	}
	engine, err := helios.Compile(rules)
	if err != nil {
		printCompileErrors(err)
		return err
	}
	defer engine.Close()
	reportReload(engine.Stats())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the containing directory rather than the file itself: most
	// editors replace a file on save (write a temp file, rename over the
	// original) rather than writing it in place, which an inode-based
	// watch on the file directly would miss.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Println(dimStyle.Render(fmt.Sprintf("watching %s for changes (ctrl-c to stop)", path)))

	var debounce *time.Timer
	debounceCh := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Coalesce bursts of events from a single save into one reload.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})
		case <-debounceCh:
			reloadFromDisk(engine, path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("watch error: %v", err)))
		case <-sigCh:
			fmt.Println(dimStyle.Render("stopping"))
			return nil
		}
	}
}

func reloadFromDisk(engine *helios.Engine, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("reload: reading %s: %v", path, err)))
		return
	}
	rules, err := helios.ParseRules(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("reload: rules did not parse, keeping the previous model:"))
		printCompileErrors(err)
		return
	}
	stats, err := engine.Reload(rules)
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("reload: compile failed, keeping the previous model:"))
		printCompileErrors(err)
		return
	}
	reportReload(stats)
}

func reportReload(stats helios.CompileStats) {
	fmt.Println(okStyle.Render(fmt.Sprintf("[%s] model live: %d rules, %d combinations (dedup %.1f%%)",
		time.Now().Format("15:04:05"), stats.EnabledRules, stats.UniqueCombinations, stats.DedupRate*100)))
}
