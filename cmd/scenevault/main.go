/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"scenevault/internal/config"
	"scenevault/internal/crash"
	applog "scenevault/internal/log"
	"scenevault/internal/store"
	"scenevault/internal/version"
)

func usage() {
	fmt.Println("SceneVault — scene persistence vault")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  scenevault version|-v|--version   Show version")
	fmt.Println("  scenevault list                   List scenes in display order (trash marked)")
	fmt.Println("  scenevault trash                  List trashed scenes with expiry dates")
	fmt.Println("  scenevault gc                     Prune attachments no scene references")
	fmt.Println("  scenevault info                   Print backend and data location")
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	var vault *store.Vault
	dataDir, _ := config.DataDir()
	defer func() { crash.Recover(vault, dataDir) }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Println("SceneVault — scene persistence vault")
			fmt.Println(version.String())
			return
		case "list":
			v, ctx, cancel := openVault(l)
			defer cancel()
			vault = v
			scenes, _, order, err := v.Load(ctx)
			if err != nil {
				fail(l, "load failed", err)
			}
			for _, id := range order {
				fmt.Printf("%s  %s\n", id, scenes[id].Name)
			}
			for id, sc := range scenes {
				if sc.Deleted {
					fmt.Printf("%s  %s  (trash)\n", id, sc.Name)
				}
			}
			closeVault(ctx, l, v)
			return
		case "trash":
			v, ctx, cancel := openVault(l)
			defer cancel()
			vault = v
			scenes, _, _, err := v.Load(ctx)
			if err != nil {
				fail(l, "load failed", err)
			}
			for id, sc := range scenes {
				if !sc.Deleted {
					continue
				}
				at := "unknown"
				if ts := sc.DeletedTime(); !ts.IsZero() {
					at = ts.Format(time.RFC3339)
				}
				fmt.Printf("%s  %s  deleted %s\n", id, sc.Name, at)
			}
			closeVault(ctx, l, v)
			return
		case "gc":
			v, ctx, cancel := openVault(l)
			defer cancel()
			vault = v
			stats, err := v.CollectGarbage(ctx)
			if err != nil {
				fail(l, "gc failed", err)
			}
			fmt.Printf("scanned %d scenes (%d unreadable), %d attachments reachable, %d pruned\n",
				stats.Scanned, stats.ParseFailures, stats.Reachable, stats.Pruned)
			closeVault(ctx, l, v)
			return
		case "info":
			cfg, _, err := config.Load()
			if err != nil {
				fail(l, "load config failed", err)
			}
			fmt.Println("Backend:", cfg.Vault.Backend)
			fmt.Println("Data dir:", dataDir)
			if cfg.Vault.Backend == config.BackendPostgres {
				fmt.Println("DSN:", cfg.Vault.PostgresDSN)
			}
			return
		}
	}

	usage()
}

func openVault(l *slog.Logger) (*store.Vault, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	cfg, pgPassword, err := config.Load()
	if err != nil {
		cancel()
		fail(l, "load config failed", err)
	}
	v, err := store.Open(ctx, cfg, pgPassword)
	if err != nil {
		cancel()
		fail(l, "open vault failed", err)
	}
	return v, ctx, cancel
}

func closeVault(ctx context.Context, l *slog.Logger, v *store.Vault) {
	if err := v.Close(ctx); err != nil {
		fail(l, "close vault failed", err)
	}
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}
