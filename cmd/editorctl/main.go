package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/blocksdk/internal/config"
	"github.com/danmuck/blocksdk/internal/editor"
	logs "github.com/danmuck/blocksdk/internal/logging"
)

func main() {
	configPath := flag.String("config", "cmd/editorctl/ex.config.toml", "editor config path")
	flag.Parse()

	logs.ConfigureRuntime()
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "editorctl: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.LoadEditorConfig(path)
	if err != nil {
		return err
	}
	srvCfg, err := cfg.ServerConfig()
	if err != nil {
		return err
	}
	srv, err := editor.NewServer(srvCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	if cfg.Watch {
		g.Go(func() error {
			return config.WatchEditorConfig(ctx, path, func(next config.EditorConfig) {
				reloadPolicy(srv, next)
			})
		})
	}
	return g.Wait()
}

// reloadPolicy applies the hot-reloadable part of a changed config.
func reloadPolicy(srv *editor.Server, next config.EditorConfig) {
	srv.SetPolicy(next.BlockWhitelist, next.AllowInsecure)
	cur := srv.Config()
	if next.ListenAddr != cur.ListenAddr || next.Origin != cur.Origin {
		logs.Warnf("editorctl.reloadPolicy listen_addr and origin changes need a restart listen=%q origin=%q",
			next.ListenAddr, next.Origin)
	}
}
