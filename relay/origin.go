package relay

import "strings"

// DefaultAllowedOrigins are the host origins trusted out of the box.
var DefaultAllowedOrigins = []string{
	"https://teams.microsoft.com",
	"https://teams.microsoft.us",
	"https://int.teams.microsoft.com",
	"https://devspaces.skype.com",
	"https://ssauth.skype.com",
	"http://dev.local",
}

// OriginValidator accepts the window's own origin and an allow-list of hosts.
type OriginValidator struct {
	self    string
	allowed map[string]struct{}
}

// NewOriginValidator builds a validator for a window at self.
func NewOriginValidator(self string, allowed []string) OriginValidator {
	v := OriginValidator{self: self, allowed: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		v.allowed[strings.ToLower(strings.TrimSpace(o))] = struct{}{}
	}
	return v
}

// Acceptable reports whether a message from origin may be processed.
func (v OriginValidator) Acceptable(origin string) bool {
	if origin == "" {
		return false
	}
	if origin == v.self {
		return true
	}
	_, ok := v.allowed[strings.ToLower(origin)]
	return ok
}
