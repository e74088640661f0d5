package relay

// GetContext asks the host for the tab's context.
func (r *Relay) GetContext(cb func(Context)) (*Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	return r.callLocked(Parent, FuncGetContext, nil, "", func(args []any) {
		var ctx Context
		if err := decodeArg(argAt(args, 0), &ctx); err != nil {
			r.logger.Debug("relay.context_decode_failed", "error", err)
		}
		if cb != nil {
			cb(ctx)
		}
	}), nil
}

// RegisterOnThemeChangeHandler sets the theme change callback; nil clears it.
func (r *Relay) RegisterOnThemeChangeHandler(fn func(theme string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(); err != nil {
		return err
	}
	r.themeHandler = fn
	return nil
}

// RegisterFullScreenHandler sets the full screen change callback.
func (r *Relay) RegisterFullScreenHandler(fn func(isFullScreen bool)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(); err != nil {
		return err
	}
	r.fullScreenHandler = fn
	return nil
}

// RegisterBackButtonHandler sets the back button callback. Returning false
// from fn lets the host navigate back.
func (r *Relay) RegisterBackButtonHandler(fn func() bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(); err != nil {
		return err
	}
	r.backButtonHandler = fn
	return nil
}

// NavigateBack asks the host to navigate back. done receives a
// *HostRejection when the host refuses; it may be nil.
func (r *Relay) NavigateBack(done func(error)) error {
	return r.navigate(FuncNavigateBack, nil, done,
		"Back navigation is not supported in the current client or context.")
}

// NavigateCrossDomain asks the host to navigate the frame to url.
func (r *Relay) NavigateCrossDomain(url string, done func(error)) error {
	return r.navigate(FuncNavigateCrossDomain, []any{url}, done,
		"Cross-origin navigation is only supported for URLs matching the pattern registered in the manifest.",
		FrameContent, FrameSettings, FrameRemove)
}

// NavigateToTab asks the host to switch to another tab instance.
func (r *Relay) NavigateToTab(tab TabInstance, done func(error)) error {
	return r.navigate(FuncNavigateToTab, []any{tab}, done,
		"Invalid internalTabInstanceId and/or channelId were/was provided")
}

func (r *Relay) navigate(fn Func, args []any, done func(error), reason string, contexts ...FrameContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(contexts...); err != nil {
		return err
	}
	r.callLocked(Parent, fn, args, "", func(resp []any) {
		var err error
		if !argBool(resp, 0) {
			err = &HostRejection{Func: fn, Reason: reason}
		}
		if done != nil {
			done(err)
		}
	})
	return nil
}

// GetTabInstances lists the tabs owned by the app.
func (r *Relay) GetTabInstances(params *TabInstanceParameters, cb func(TabInformation)) (*Call, error) {
	return r.tabInstances(FuncGetTabInstances, params, cb)
}

// GetMruTabInstances lists the most recently used tabs owned by the app.
func (r *Relay) GetMruTabInstances(params *TabInstanceParameters, cb func(TabInformation)) (*Call, error) {
	return r.tabInstances(FuncGetMruTabInstances, params, cb)
}

func (r *Relay) tabInstances(fn Func, params *TabInstanceParameters, cb func(TabInformation)) (*Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	var arg any
	if params != nil {
		arg = *params
	}
	return r.callLocked(Parent, fn, []any{arg}, "", func(args []any) {
		var info TabInformation
		if err := decodeArg(argAt(args, 0), &info); err != nil {
			r.logger.Debug("relay.tab_instances_decode_failed", "error", err)
		}
		if cb != nil {
			cb(info)
		}
	}), nil
}

// ShareDeepLink shares a deep link to a sub-entity of the tab.
func (r *Relay) ShareDeepLink(p DeepLinkParameters) error {
	return r.notifyParent(FuncShareDeepLink, []any{p.SubEntityID, p.SubEntityLabel, p.SubEntityWebURL}, FrameContent)
}

// OpenFilePreview opens a file in the host's previewer.
func (r *Relay) OpenFilePreview(p FilePreviewParameters) error {
	return r.notifyParent(FuncOpenFilePreview, []any{
		p.EntityID, p.Title, p.Description, p.Type,
		p.ObjectURL, p.DownloadURL, p.WebPreviewURL, p.WebEditURL,
	}, FrameContent)
}

// notifyParent sends a request whose response, if any, is not awaited.
func (r *Relay) notifyParent(fn Func, args []any, contexts ...FrameContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(contexts...); err != nil {
		return err
	}
	r.sendRequestLocked(Parent, fn, args, "")
	return nil
}

func (r *Relay) handleThemeChange(args []any) any {
	theme := argString(args, 0)
	r.mu.Lock()
	fn := r.themeHandler
	r.mu.Unlock()
	if fn != nil {
		fn(theme)
	}

	r.mu.Lock()
	if r.peers[Child].window != nil {
		r.sendRequestLocked(Child, FuncThemeChange, []any{theme}, "")
	}
	r.mu.Unlock()
	return nil
}

func (r *Relay) handleFullScreenChange(args []any) any {
	r.mu.Lock()
	fn := r.fullScreenHandler
	r.mu.Unlock()
	if fn != nil {
		fn(argBool(args, 0))
	}
	return nil
}

func (r *Relay) handleBackButtonPress([]any) any {
	r.mu.Lock()
	fn := r.backButtonHandler
	r.mu.Unlock()
	if fn == nil || !fn() {
		if err := r.NavigateBack(nil); err != nil {
			r.logger.Debug("relay.navigate_back_failed", "error", err)
		}
	}
	return nil
}
