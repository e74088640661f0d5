package cards

import (
	"fmt"
	"strings"

	"taskmodule/relay"
)

const taskDeepLinkBase = "https://teams.microsoft.com/l/task/"

// TaskDeepLink links to a task module showing appRoot/path. The title is
// escaped as a component and the whole link escaped again as a URI, which is
// the form the host expects.
func TaskDeepLink(appID, appRoot, path string, height, width relay.Dimension, title string) string {
	link := fmt.Sprintf("%s%s?url=%s/%s&height=%s&width=%s&title=%s",
		taskDeepLinkBase, appID, strings.TrimSuffix(appRoot, "/"), path, height, width, EncodeURIComponent(title))
	return EncodeURI(link)
}

// CardDeepLink links to a task module showing an adaptive card.
func CardDeepLink(appID string, height, width relay.Dimension, cardJSON string) string {
	link := fmt.Sprintf("%s%s?height=%s&width=%s&card=%s",
		taskDeepLinkBase, appID, height, width, EncodeURIComponent(cardJSON))
	return EncodeURI(link)
}

const (
	componentUnreserved = "-_.!~*'()"
	uriReserved         = ";,/?:@&=+$#"
)

// EncodeURIComponent escapes s the way browsers escape URI components.
func EncodeURIComponent(s string) string { return escape(s, componentUnreserved) }

// EncodeURI escapes s the way browsers escape whole URIs, keeping reserved
// characters.
func EncodeURI(s string) string { return escape(s, componentUnreserved+uriReserved) }

func escape(s, keep string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || strings.IndexByte(keep, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}
