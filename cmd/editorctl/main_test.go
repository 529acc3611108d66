package main

import (
	"testing"

	"github.com/danmuck/blocksdk/internal/config"
	"github.com/danmuck/blocksdk/internal/editor"
	"github.com/danmuck/blocksdk/internal/testutil/testlog"
)

func TestExampleConfigBuildsServer(t *testing.T) {
	testlog.Start(t)

	cfg, err := config.LoadEditorConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load example config: %v", err)
	}
	srvCfg, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	srv, err := editor.NewServer(srvCfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if string(srv.Store().UserData()) != `{"stack":"s7"}` {
		t.Fatalf("unexpected user data: %s", srv.Store().UserData())
	}
	if !srv.Policy().IsTrusted("http://localhost:7000") {
		t.Fatalf("example policy should trust localhost")
	}
}

func TestReloadPolicySwapsWhitelist(t *testing.T) {
	testlog.Start(t)

	srv, err := editor.NewServer(editor.DefaultServerConfig())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	next := config.DefaultEditorConfig()
	next.BlockWhitelist = []string{"blocks.example.com"}
	next.AllowInsecure = false
	reloadPolicy(srv, next)

	if srv.Policy().IsTrusted("http://localhost:7000") {
		t.Fatalf("old whitelist should be gone")
	}
	if !srv.Policy().IsTrusted("https://cdn.blocks.example.com") {
		t.Fatalf("new whitelist should apply")
	}
	if srv.Policy().AllowInsecure() {
		t.Fatalf("insecure flag should be reloaded")
	}
}
