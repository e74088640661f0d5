// Command relaysim runs the tab pages' relay against a simulated Teams host
// in an in-process browser. It walks the configuration page through a save
// and the task module tab through a theme change and a task module, logging
// every message the host sees.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"taskmodule/frame"
	"taskmodule/relay"
	"taskmodule/tab"
)

type options struct {
	HostURL string
	AppRoot string
	Choice  string
	Button  string
	Theme   string
	Timeout time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.HostURL, "host", "https://teams.microsoft.com/_#/", "URL of the simulated host window")
	flag.StringVar(&opts.AppRoot, "app-root", "http://127.0.0.1:3333", "Origin the tab pages are served from")
	flag.StringVar(&opts.Choice, "choice", tab.ChoiceTaskModule, "Tab selected on the configuration page")
	flag.StringVar(&opts.Button, "button", "customform", "Task module button pressed on the tab")
	flag.StringVar(&opts.Theme, "theme", "dark", "Theme the host switches to")
	flag.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "Time allowed for each step")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		log.Fatalf("invalid log level %q: %v", *logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), opts, logger); err != nil {
		logger.Error("relaysim.failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relaysim.done")
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	appRoot := strings.TrimSuffix(opts.AppRoot, "/")
	b := frame.NewBrowser(frame.Options{Logger: logger})
	defer b.Close()

	relayCfg := relay.Config{Logger: logger, RequestTimeout: opts.Timeout}

	// Configuration page, hosted in the settings dialog.
	settingsHost := newFakeHost(string(relay.FrameSettings), logger)
	settingsWindow := b.OpenWindow(opts.HostURL)
	settingsWindow.AddMessageListener(settingsHost.listen)
	configPage := b.OpenFrame(settingsWindow, appRoot+"/configure")

	configRelay := relay.New(configPage, relayCfg)
	configure, err := tab.New(configRelay, configPage.Location(), logger)
	if err != nil {
		return err
	}
	if err := doOn(configPage, configure.Start); err != nil {
		return fmt.Errorf("start configuration page: %w", err)
	}
	if err := waitFor(ctx, opts.Timeout, "settings handshake", func() bool {
		return configRelay.FrameContext() == relay.FrameSettings
	}); err != nil {
		return err
	}
	logger.Info("relaysim.initialized", "page", configPage.Location(), "frame_context", configRelay.FrameContext())

	if err := doOn(configPage, func() error {
		if err := configure.Configure(); err != nil {
			return err
		}
		return configure.Select(opts.Choice)
	}); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	settingsHost.send("settings.save", map[string]any{})
	if err := waitFor(ctx, opts.Timeout, "settings save", func() bool {
		return settingsHost.called("settings.save.success") || settingsHost.called("settings.save.failure")
	}); err != nil {
		return err
	}
	if !settingsHost.called("settings.save.success") {
		return errors.New("settings save reported failure")
	}
	logger.Info("relaysim.settings_saved", "content_url", configure.TabURL())

	// Content page the saved settings point at.
	contentHost := newFakeHost(string(relay.FrameContent), logger)
	contentWindow := b.OpenWindow(opts.HostURL)
	contentWindow.AddMessageListener(contentHost.listen)
	contentPage := b.OpenFrame(contentWindow, configure.TabURL())

	contentRelay := relay.New(contentPage, relayCfg)
	content, err := tab.New(contentRelay, contentPage.Location(), logger)
	if err != nil {
		return err
	}
	if err := doOn(contentPage, content.Start); err != nil {
		return fmt.Errorf("start content page: %w", err)
	}
	if err := waitFor(ctx, opts.Timeout, "context", func() bool { return content.Theme() != "" }); err != nil {
		return err
	}
	logger.Info("relaysim.context", "theme", content.Theme(), "class", tab.ThemeClass(content.Theme()))

	contentHost.send("themeChange", opts.Theme)
	if err := waitFor(ctx, opts.Timeout, "theme change", func() bool { return content.Theme() == opts.Theme }); err != nil {
		return err
	}
	logger.Info("relaysim.theme_changed", "theme", content.Theme(), "class", tab.ThemeClass(content.Theme()))

	results := make(chan taskResult, 1)
	if err := doOn(contentPage, func() error {
		_, err := content.StartTask(opts.Button, func(errText string, result any) {
			results <- taskResult{err: errText, value: result}
		})
		return err
	}); err != nil {
		return fmt.Errorf("start task: %w", err)
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	select {
	case res := <-results:
		if res.err != "" {
			return fmt.Errorf("task module failed: %s", res.err)
		}
		logger.Info("relaysim.task_completed", "button", opts.Button, "result", res.value)
	case <-timer.C:
		return errors.New("timed out waiting for task module result")
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Info("relaysim.host_calls", "settings", settingsHost.funcs(), "content", contentHost.funcs())
	return nil
}

type taskResult struct {
	err   string
	value any
}

// doOn runs fn on w's loop and returns its error.
func doOn(w *frame.Window, fn func() error) error {
	var err error
	if !w.Do(func() { err = fn() }) {
		return errors.New("window closed")
	}
	return err
}

func waitFor(ctx context.Context, timeout time.Duration, what string, cond func() bool) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for !cond() {
		select {
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for %s", what)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// fakeHost answers the tab's requests the way Teams would.
type fakeHost struct {
	frameContext string
	logger       *slog.Logger

	mu        sync.Mutex
	received  []string
	tab       relay.Window
	tabOrigin string
}

func newFakeHost(frameContext string, logger *slog.Logger) *fakeHost {
	return &fakeHost{frameContext: frameContext, logger: logger}
}

func (h *fakeHost) listen(evt relay.MessageEvent) {
	m, ok := evt.Data.(map[string]any)
	if !ok {
		return
	}
	fn, _ := m["func"].(string)
	h.mu.Lock()
	h.received = append(h.received, fn)
	h.tab, h.tabOrigin = evt.Source, evt.Origin
	h.mu.Unlock()
	h.logger.Info("host.received", "frame_context", h.frameContext, "func", fn, "args", m["args"])

	reply := func(args ...any) {
		evt.Source.PostMessage(map[string]any{"id": m["id"], "args": args}, evt.Origin)
	}
	switch fn {
	case "initialize":
		reply(h.frameContext, "web")
	case "getContext":
		reply(map[string]any{"theme": "default", "locale": "en-us", "frameContext": h.frameContext})
	case "start":
		reply(nil, map[string]any{"name": "Ada Lovelace", "email": "ada@example.com", "favoriteBook": "Sketch of the Analytical Engine"})
	}
}

func (h *fakeHost) send(fn string, args ...any) {
	h.mu.Lock()
	to, origin := h.tab, h.tabOrigin
	h.mu.Unlock()
	if to == nil {
		h.logger.Warn("host.no_tab", "func", fn)
		return
	}
	if args == nil {
		args = []any{}
	}
	h.logger.Info("host.sent", "frame_context", h.frameContext, "func", fn, "args", args)
	to.PostMessage(map[string]any{"func": fn, "args": args}, origin)
}

func (h *fakeHost) called(fn string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.received {
		if f == fn {
			return true
		}
	}
	return false
}

func (h *fakeHost) funcs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.received...)
}
