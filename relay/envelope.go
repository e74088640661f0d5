package relay

import (
	"encoding/json"
	"math"
)

// Func names a message function exchanged between windows.
type Func string

const (
	FuncInitialize               Func = "initialize"
	FuncGetContext               Func = "getContext"
	FuncPing                     Func = "ping"
	FuncThemeChange              Func = "themeChange"
	FuncFullScreenChange         Func = "fullScreenChange"
	FuncBackButtonPress          Func = "backButtonPress"
	FuncNavigateBack             Func = "navigateBack"
	FuncNavigateCrossDomain      Func = "navigateCrossDomain"
	FuncNavigateToTab            Func = "navigateToTab"
	FuncGetTabInstances          Func = "getTabInstances"
	FuncGetMruTabInstances       Func = "getMruTabInstances"
	FuncShareDeepLink            Func = "shareDeepLink"
	FuncOpenFilePreview          Func = "openFilePreview"
	FuncSettingsSetValidityState Func = "settings.setValidityState"
	FuncSettingsGetSettings      Func = "settings.getSettings"
	FuncSettingsSetSettings      Func = "settings.setSettings"
	FuncSettingsSave             Func = "settings.save"
	FuncSettingsSaveSuccess      Func = "settings.save.success"
	FuncSettingsSaveFailure      Func = "settings.save.failure"
	FuncSettingsRemove           Func = "settings.remove"
	FuncSettingsRemoveSuccess    Func = "settings.remove.success"
	FuncSettingsRemoveFailure    Func = "settings.remove.failure"
	FuncAuthenticate             Func = "authentication.authenticate"
	FuncAuthenticateSuccess      Func = "authentication.authenticate.success"
	FuncAuthenticateFailure      Func = "authentication.authenticate.failure"
	FuncGetAuthToken             Func = "authentication.getAuthToken"
	FuncGetUser                  Func = "authentication.getUser"
	FuncTaskStart                Func = "start"
	FuncTaskComplete             Func = "complete"
)

var knownFuncs = map[Func]struct{}{
	FuncInitialize: {}, FuncGetContext: {}, FuncPing: {},
	FuncThemeChange: {}, FuncFullScreenChange: {}, FuncBackButtonPress: {},
	FuncNavigateBack: {}, FuncNavigateCrossDomain: {}, FuncNavigateToTab: {},
	FuncGetTabInstances: {}, FuncGetMruTabInstances: {},
	FuncShareDeepLink: {}, FuncOpenFilePreview: {},
	FuncSettingsSetValidityState: {}, FuncSettingsGetSettings: {}, FuncSettingsSetSettings: {},
	FuncSettingsSave: {}, FuncSettingsSaveSuccess: {}, FuncSettingsSaveFailure: {},
	FuncSettingsRemove: {}, FuncSettingsRemoveSuccess: {}, FuncSettingsRemoveFailure: {},
	FuncAuthenticate: {}, FuncAuthenticateSuccess: {}, FuncAuthenticateFailure: {},
	FuncGetAuthToken: {}, FuncGetUser: {},
	FuncTaskStart: {}, FuncTaskComplete: {},
}

// Known reports whether f is one of the message functions the relay understands.
func (f Func) Known() bool {
	_, ok := knownFuncs[f]
	return ok
}

// Envelope is the unit exchanged over the transport. A request carries Func;
// a response carries only ID and Args.
type Envelope struct {
	ID   *int  `json:"id,omitempty"`
	Func Func  `json:"func,omitempty"`
	Args []any `json:"args"`
}

// IsRequest reports whether the envelope names a function.
func (e Envelope) IsRequest() bool { return e.Func != "" }

// IsResponse reports whether the envelope is a reply to an earlier request.
func (e Envelope) IsResponse() bool { return e.ID != nil && e.Func == "" }

func newRequest(id int, fn Func, args []any) Envelope {
	if args == nil {
		args = []any{}
	}
	return Envelope{ID: &id, Func: fn, Args: args}
}

func newResponse(id int, args []any) Envelope {
	if args == nil {
		args = []any{}
	}
	return Envelope{ID: &id, Args: args}
}

// decodeEnvelope accepts the shapes a transport may hand over: an Envelope,
// a decoded JSON object or raw JSON bytes.
func decodeEnvelope(data any) (Envelope, bool) {
	var env Envelope
	switch v := data.(type) {
	case Envelope:
		env = v
	case *Envelope:
		if v == nil {
			return Envelope{}, false
		}
		env = *v
	case map[string]any:
		return envelopeFromMap(v)
	case json.RawMessage:
		return decodeJSONEnvelope(v)
	case []byte:
		return decodeJSONEnvelope(v)
	default:
		return Envelope{}, false
	}
	if env.ID == nil && env.Func == "" {
		return Envelope{}, false
	}
	return env, true
}

func decodeJSONEnvelope(b []byte) (Envelope, bool) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return Envelope{}, false
	}
	return envelopeFromMap(m)
}

func envelopeFromMap(m map[string]any) (Envelope, bool) {
	if m == nil {
		return Envelope{}, false
	}
	var env Envelope
	if raw, ok := m["id"]; ok {
		id, ok := toInt(raw)
		if !ok {
			return Envelope{}, false
		}
		env.ID = &id
	}
	if raw, ok := m["func"]; ok {
		name, ok := raw.(string)
		if !ok || name == "" {
			return Envelope{}, false
		}
		env.Func = Func(name)
	}
	if env.ID == nil && env.Func == "" {
		return Envelope{}, false
	}
	if args, ok := m["args"].([]any); ok {
		env.Args = args
	}
	return env, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// responseArgs turns a handler result into response args. Nothing is sent
// for nil, false or an empty slice.
func responseArgs(result any) []any {
	switch v := result.(type) {
	case nil:
		return nil
	case bool:
		if !v {
			return nil
		}
		return []any{v}
	case []any:
		if len(v) == 0 {
			return nil
		}
		return v
	default:
		return []any{v}
	}
}

func argAt(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

func argString(args []any, i int) string {
	s, _ := argAt(args, i).(string)
	return s
}

// argText renders a result argument as text, encoding non-strings as JSON.
func argText(args []any, i int) string {
	switch v := argAt(args, i).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func argBool(args []any, i int) bool {
	b, _ := argAt(args, i).(bool)
	return b
}

// decodeArg converts a loosely typed argument (usually a decoded JSON
// object) into out.
func decodeArg(v any, out any) error {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
