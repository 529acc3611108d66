package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/blocksdk/internal/blocksdk"
	"github.com/danmuck/blocksdk/internal/channel/wschan"
	"github.com/danmuck/blocksdk/internal/config"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/tools"
)

var errUnknownVerb = errors.New("blockctl: unknown verb")

type options struct {
	configPath string
	verb       string
	arg        string
	appID      string
	wait       time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "cmd/blockctl/ex.config.toml", "block config path")
	flag.StringVar(&opts.verb, "verb", blocksdk.MethodGetContent, "verb to call, or triggerAuth")
	flag.StringVar(&opts.arg, "arg", "", "verb argument: text for content verbs, JSON for data verbs")
	flag.StringVar(&opts.appID, "app-id", "", "app id for triggerAuth")
	flag.DurationVar(&opts.wait, "wait", 10*time.Second, "how long to wait for the editor")
	flag.Parse()

	logs.ConfigureRuntime()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "blockctl: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadBlockConfig(opts.configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()

	client, err := wschan.Dial(ctx, cfg.DialConfig())
	if err != nil {
		return err
	}
	defer client.Close()

	result := make(chan string, 1)
	opener := blocksdk.OpenerFunc(func(rawURL string) error {
		err := tools.Browser{}.Open(rawURL)
		result <- rawURL
		return err
	})
	sdkCfg := cfg.SDKConfig(opener)
	sdkCfg.OnEditClose = func() {
		logs.Infof("blockctl editor closed the block url=%q", cfg.EditorURL)
	}
	sdk, err := blocksdk.New(client, sdkCfg)
	if err != nil {
		return err
	}
	defer sdk.Close()

	if err := call(sdk, opts, result); err != nil {
		return err
	}
	select {
	case out := <-result:
		fmt.Println(out)
		return nil
	case <-ctx.Done():
		stats := sdk.Session().Stats()
		return fmt.Errorf("no answer from editor (established=%v retried=%d abandoned=%d): %w",
			sdk.Session().Established(), stats.Retried, stats.Abandoned, ctx.Err())
	}
}

func call(sdk *blocksdk.SDK, opts options, result chan<- string) error {
	text := func(content string) { result <- content }
	data := func(raw json.RawMessage) { result <- string(raw) }

	switch opts.verb {
	case blocksdk.MethodGetContent:
		return sdk.GetContent(text)
	case blocksdk.MethodSetContent:
		return sdk.SetContent(opts.arg, text)
	case blocksdk.MethodSetSuperContent:
		return sdk.SetSuperContent(opts.arg, text)
	case blocksdk.MethodGetData:
		return sdk.GetData(data)
	case blocksdk.MethodGetCentralData:
		return sdk.GetCentralData(data)
	case blocksdk.MethodGetUserData:
		return sdk.GetUserData(data)
	case blocksdk.MethodSetData, blocksdk.MethodSetCentralData, blocksdk.MethodSetBlockEditorWidth, blocksdk.MethodSetTabs:
		payload, err := jsonArg(opts.arg)
		if err != nil {
			return err
		}
		return sdk.Call(opts.verb, payload, data)
	case "triggerAuth":
		return sdk.TriggerAuth(opts.appID)
	default:
		return fmt.Errorf("%w: %q", errUnknownVerb, opts.verb)
	}
}

func jsonArg(arg string) (json.RawMessage, error) {
	if arg == "" {
		return json.RawMessage(`null`), nil
	}
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("blockctl: -arg is not valid JSON: %s", arg)
	}
	return json.RawMessage(arg), nil
}
