package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"taskmodule/cards"
	"taskmodule/storage"
)

// Config wires a Bot.
type Config struct {
	AppID   string
	AppRoot string
	Store   storage.Store
	Sender  Sender
	Logger  *slog.Logger
}

// Bot answers messages through its dialogs and task module invokes directly.
type Bot struct {
	appRoot string
	store   storage.Store
	sender  Sender
	logger  *slog.Logger
	dialogs map[string]Dialog
}

// New builds a bot with the root and ACTester dialogs registered.
func New(cfg Config) *Bot {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	b := &Bot{
		appRoot: cfg.AppRoot,
		store:   store,
		sender:  cfg.Sender,
		logger:  logger,
		dialogs: make(map[string]Dialog),
	}
	b.Register(&rootDialog{appID: cfg.AppID, appRoot: cfg.AppRoot})
	b.Register(acTesterDialog{})
	return b
}

// Register adds or replaces a dialog.
func (b *Bot) Register(d Dialog) {
	b.dialogs[d.ID()] = d
}

// HandleActivity processes one incoming activity. Invokes always get a
// response; other activity types get nil.
func (b *Bot) HandleActivity(ctx context.Context, a *Activity) (*InvokeResponse, error) {
	switch a.Type {
	case ActivityMessage:
		return nil, b.dispatch(ctx, a)
	case ActivityInvoke:
		return b.onInvoke(ctx, a)
	default:
		b.logger.Debug("bot.activity_ignored", "type", a.Type)
		return nil, nil
	}
}

func (b *Bot) onInvoke(ctx context.Context, a *Activity) (*InvokeResponse, error) {
	ok := &InvokeResponse{Status: http.StatusOK}
	payload := a.valueMap()
	if payload == nil {
		b.logger.Warn("bot.invoke_without_value", "name", a.Name)
		return ok, nil
	}

	kind, _ := payload["type"].(string)
	b.logger.Info("bot.invoke", "type", kind, "name", a.Name, "conversation", a.Conversation.ID)

	switch {
	case payload["type"] == nil:
		// Route as a message, remembering the invoke it came from. The
		// value is encoded with an explicit null type.
		untyped := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			untyped[k] = v
		}
		untyped["type"] = nil
		encoded, err := json.Marshal(untyped)
		if err != nil {
			return nil, fmt.Errorf("bot: encode invoke value: %w", err)
		}
		command, _ := payload["command"].(string)
		msg := *a
		msg.Type = ActivityMessage
		msg.Text = command + " " + string(encoded)
		msg.OriginalInvoke = a
		if err := b.dispatch(ctx, &msg); err != nil {
			return nil, err
		}
		return ok, nil

	case kind == InvokeTaskFetch:
		id, _ := payload["taskModule"].(string)
		resp, found, err := cards.FetchTemplate(b.appRoot, id)
		if err != nil {
			return nil, err
		}
		if !found {
			if id == "" {
				id = "<undefined>"
			}
			b.logger.Error("bot.task_fetch_unknown", "task_module", id)
			return ok, nil
		}
		return &InvokeResponse{Status: http.StatusOK, Body: resp}, nil

	case kind == InvokeTaskSubmit:
		encoded, err := json.Marshal(payload["data"])
		if err != nil {
			return nil, fmt.Errorf("bot: encode submit data: %w", err)
		}
		return &InvokeResponse{
			Status: http.StatusOK,
			Body:   cards.MessageResponse("**task/submit results:** " + string(encoded)),
		}, nil

	default:
		return ok, nil
	}
}

// dispatch loads the conversation state, routes the message to the active
// dialog and saves the state back.
func (b *Bot) dispatch(ctx context.Context, msg *Activity) error {
	if b.sender == nil {
		return errors.New("bot: no sender configured")
	}
	key := msg.stateKey()
	state, err := b.store.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if len(state.DialogStack) == 0 {
		state.DialogStack = []string{cards.DialogRoot}
	}
	active := state.DialogStack[len(state.DialogStack)-1]
	d, ok := b.dialogs[active]
	if !ok {
		b.logger.Warn("bot.dialog_missing", "dialog", active)
		state.DialogStack = []string{cards.DialogRoot}
		d = b.dialogs[cards.DialogRoot]
	}

	s := &Session{ctx: ctx, bot: b, Message: msg, State: &state}
	runErr := d.Run(s)
	if err := b.store.Save(ctx, key, state); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
