package relay

import "sync"

// InstanceSettings are the tab settings saved by the configuration page.
type InstanceSettings struct {
	SuggestedDisplayName string `json:"suggestedDisplayName,omitempty"`
	ContentURL           string `json:"contentUrl"`
	RemoveURL            string `json:"removeUrl,omitempty"`
	WebsiteURL           string `json:"websiteUrl,omitempty"`
	EntityID             string `json:"entityId"`
}

// Settings groups the configuration and removal page APIs.
type Settings struct {
	r *Relay
}

// Settings returns the settings namespace.
func (r *Relay) Settings() *Settings { return &Settings{r: r} }

// SetValidityState enables or disables the host's save or remove button.
func (s *Settings) SetValidityState(valid bool) error {
	return s.r.notifyParent(FuncSettingsSetValidityState, []any{valid}, FrameSettings, FrameRemove)
}

// GetSettings fetches the settings of the current tab instance.
func (s *Settings) GetSettings(cb func(InstanceSettings)) (*Call, error) {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(FrameSettings, FrameRemove); err != nil {
		return nil, err
	}
	return r.callLocked(Parent, FuncSettingsGetSettings, nil, "", func(args []any) {
		var out InstanceSettings
		if err := decodeArg(argAt(args, 0), &out); err != nil {
			r.logger.Debug("relay.settings_decode_failed", "error", err)
		}
		if cb != nil {
			cb(out)
		}
	}), nil
}

// SetSettings stores settings for the tab instance being configured.
func (s *Settings) SetSettings(settings InstanceSettings) error {
	return s.r.notifyParent(FuncSettingsSetSettings, []any{settings}, FrameSettings)
}

// RegisterOnSaveHandler sets the save callback. Without one, saves succeed
// automatically.
func (s *Settings) RegisterOnSaveHandler(fn func(*SaveEvent)) error {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(FrameSettings); err != nil {
		return err
	}
	r.saveHandler = fn
	return nil
}

// RegisterOnRemoveHandler sets the remove callback. Without one, removals
// succeed automatically.
func (s *Settings) RegisterOnRemoveHandler(fn func(*RemoveEvent)) error {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(FrameRemove); err != nil {
		return err
	}
	r.removeHandler = fn
	return nil
}

// notifier lets an event report its outcome to the host once.
type notifier struct {
	r       *Relay
	success Func
	failure Func

	mu       sync.Mutex
	notified bool
}

func (n *notifier) notify(fn Func, args []any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notified {
		return ErrAlreadyNotified
	}
	n.r.mu.Lock()
	n.r.sendRequestLocked(Parent, fn, args, "")
	n.r.mu.Unlock()
	n.notified = true
	return nil
}

// SaveEvent is passed to the save handler.
type SaveEvent struct {
	Result map[string]any
	n      *notifier
}

// NotifySuccess tells the host the settings were saved.
func (e *SaveEvent) NotifySuccess() error { return e.n.notify(e.n.success, nil) }

// NotifyFailure tells the host the save failed.
func (e *SaveEvent) NotifyFailure(reason string) error {
	return e.n.notify(e.n.failure, []any{reason})
}

// RemoveEvent is passed to the remove handler.
type RemoveEvent struct {
	n *notifier
}

// NotifySuccess tells the host the tab may be removed.
func (e *RemoveEvent) NotifySuccess() error { return e.n.notify(e.n.success, nil) }

// NotifyFailure tells the host the removal failed.
func (e *RemoveEvent) NotifyFailure(reason string) error {
	return e.n.notify(e.n.failure, []any{reason})
}

func (r *Relay) handleSave(args []any) any {
	result, _ := argAt(args, 0).(map[string]any)
	if result == nil {
		result = map[string]any{}
	}
	evt := &SaveEvent{
		Result: result,
		n:      &notifier{r: r, success: FuncSettingsSaveSuccess, failure: FuncSettingsSaveFailure},
	}

	r.mu.Lock()
	fn := r.saveHandler
	r.mu.Unlock()
	if fn != nil {
		fn(evt)
		return nil
	}
	_ = evt.NotifySuccess()
	return nil
}

func (r *Relay) handleRemove([]any) any {
	evt := &RemoveEvent{
		n: &notifier{r: r, success: FuncSettingsRemoveSuccess, failure: FuncSettingsRemoveFailure},
	}

	r.mu.Lock()
	fn := r.removeHandler
	r.mu.Unlock()
	if fn != nil {
		fn(evt)
		return nil
	}
	_ = evt.NotifySuccess()
	return nil
}
