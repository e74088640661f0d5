// Package tab is the tab page logic: theme handling, the configuration page
// and the task module buttons, driven through the relay.
package tab

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"taskmodule/cards"
	"taskmodule/relay"
)

// AppID is the app id passed when starting task modules from the tab.
const AppID = "bdc707d5-48e0-48f8-bbe7-6131e0565a4c"

// Tab pages a configuration page may choose.
const (
	ChoiceFirst      = "first"
	ChoiceSecond     = "second"
	ChoiceTaskModule = "taskmodule"
)

// ErrUnknownButton is returned by StartTask for an unexpected button id.
var ErrUnknownButton = errors.New("tab: unexpected button id")

// Controller drives one tab page.
type Controller struct {
	r       *relay.Relay
	appRoot string
	logger  *slog.Logger

	mu     sync.Mutex
	theme  string
	choice string
}

// New returns a controller for a page at location.
func New(r *relay.Relay, location string, logger *slog.Logger) (*Controller, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("tab: invalid page location %q", location)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		r:       r,
		appRoot: u.Scheme + "://" + u.Host,
		logger:  logger,
	}, nil
}

// Start initializes the relay, applies the host's theme and follows theme
// changes.
func (c *Controller) Start() error {
	c.r.Initialize()
	if _, err := c.r.GetContext(func(ctx relay.Context) {
		if ctx.Theme != "" {
			c.setTheme(ctx.Theme)
		}
	}); err != nil {
		return err
	}
	return c.r.RegisterOnThemeChangeHandler(c.setTheme)
}

// ThemeClass returns the page class for a host theme. The host's "default"
// theme is the light one.
func ThemeClass(theme string) string {
	if theme == "" {
		return ""
	}
	if theme == "default" {
		theme = "light"
	}
	return "theme-" + theme
}

func (c *Controller) setTheme(theme string) {
	if theme == "" {
		return
	}
	c.mu.Lock()
	c.theme = theme
	c.mu.Unlock()
	c.logger.Debug("tab.theme", "theme", theme, "class", ThemeClass(theme))
}

// Theme returns the last theme applied.
func (c *Controller) Theme() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.theme
}

// Configure makes saving the configuration page store the selected tab.
func (c *Controller) Configure() error {
	return c.r.Settings().RegisterOnSaveHandler(func(evt *relay.SaveEvent) {
		tabURL := c.TabURL()
		if err := c.r.Settings().SetSettings(relay.InstanceSettings{
			ContentURL: tabURL,
			EntityID:   tabURL,
		}); err != nil {
			c.logger.Warn("tab.set_settings_failed", "error", err)
			_ = evt.NotifyFailure(err.Error())
			return
		}
		if err := evt.NotifySuccess(); err != nil {
			c.logger.Warn("tab.notify_failed", "error", err)
		}
	})
}

// Select records the chosen tab page and enables saving for valid choices.
func (c *Controller) Select(choice string) error {
	c.mu.Lock()
	c.choice = choice
	c.mu.Unlock()
	valid := choice == ChoiceFirst || choice == ChoiceSecond || choice == ChoiceTaskModule
	return c.r.Settings().SetValidityState(valid)
}

// TabURL is the content URL for the selected tab page.
func (c *Controller) TabURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appRoot + "/" + c.choice
}

// TaskInfo builds the task module opened by a tab button.
func (c *Controller) TaskInfo(buttonID string) (relay.TaskInfo, error) {
	info := relay.TaskInfo{AppID: AppID}
	switch buttonID {
	case cards.YouTube:
		info.Title, info.Height, info.Width = cards.YouTubeTitle, "large", "large"
		info.URL = c.appRoot + "/" + cards.Paths[cards.YouTube]
	case cards.PowerApp:
		info.Title, info.Height, info.Width = cards.PowerAppTitle, "large", "large"
		info.URL = c.appRoot + "/" + cards.Paths[cards.PowerApp]
	case cards.CustomForm:
		info.Title, info.Height, info.Width = cards.CustomFormTitle, "medium", "medium"
		info.URL = c.appRoot + "/" + cards.Paths[cards.CustomForm]
	case cards.AdaptiveCard:
		card, err := cards.RenderJSON(cards.AdaptiveCardInputs, map[string]string{"source": "tab"})
		if err != nil {
			return relay.TaskInfo{}, err
		}
		info.Title, info.Height, info.Width = cards.AdaptiveCardTitle, "large", "medium"
		info.Card = card
	default:
		return relay.TaskInfo{}, fmt.Errorf("%w: %q", ErrUnknownButton, buttonID)
	}
	return info, nil
}

// StartTask opens the task module for a tab button. done receives the
// module's result.
func (c *Controller) StartTask(buttonID string, done func(err string, result any)) (*relay.Call, error) {
	info, err := c.TaskInfo(buttonID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("tab.start_task", "button", buttonID, "url", info.URL)
	return c.r.Tasks().Start(info, func(errText string, result any) {
		c.logger.Info("tab.task_result", "button", buttonID, "error", errText, "result", result)
		if done != nil {
			done(errText, result)
		}
	})
}

// DeepLinks returns the deep links shown on the task module tab.
func (c *Controller) DeepLinks() (map[string]string, error) {
	return DeepLinks(AppID, c.appRoot)
}

// DeepLinks returns the tab's task module deep links for app appID served
// from appRoot, keyed by anchor id.
func DeepLinks(appID, appRoot string) (map[string]string, error) {
	card, err := cards.RenderJSON(cards.AdaptiveCardInputs, map[string]string{"source": "deeplink"})
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"dlYouTube":      cards.TaskDeepLink(appID, appRoot, cards.Paths[cards.YouTube], "large", "large", cards.YouTubeTitle),
		"dlPowerApps":    cards.TaskDeepLink(appID, appRoot, cards.Paths[cards.PowerApp], "large", "large", cards.PowerAppTitle),
		"dlCustomForm":   cards.TaskDeepLink(appID, appRoot, cards.Paths[cards.CustomForm], "medium", "medium", cards.CustomFormTitle),
		"dlAdaptiveCard": cards.CardDeepLink(appID, "large", "medium", card),
	}, nil
}
