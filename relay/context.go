package relay

// Version is the protocol version announced in the initialize handshake.
const Version = "1.2"

// FrameContext is the role the host assigned to this window.
type FrameContext string

const (
	FrameSettings       FrameContext = "settings"
	FrameContent        FrameContext = "content"
	FrameAuthentication FrameContext = "authentication"
	FrameRemove         FrameContext = "remove"
)

// HostClientType identifies the host client flavour.
type HostClientType string

const (
	HostDesktop HostClientType = "desktop"
	HostWeb     HostClientType = "web"
)

// Context is the information the host returns for getContext.
type Context struct {
	GroupID            string `json:"groupId,omitempty"`
	TeamID             string `json:"teamId,omitempty"`
	TeamName           string `json:"teamName,omitempty"`
	ChannelID          string `json:"channelId,omitempty"`
	ChannelName        string `json:"channelName,omitempty"`
	EntityID           string `json:"entityId,omitempty"`
	SubEntityID        string `json:"subEntityId,omitempty"`
	Locale             string `json:"locale,omitempty"`
	UPN                string `json:"upn,omitempty"`
	TenantID           string `json:"tid,omitempty"`
	Theme              string `json:"theme,omitempty"`
	IsFullScreen       bool   `json:"isFullScreen,omitempty"`
	TeamType           int    `json:"teamType,omitempty"`
	TeamSitePath       string `json:"teamSitePath,omitempty"`
	ChannelRelativeURL string `json:"channelRelativeUrl,omitempty"`
	SessionID          string `json:"sessionId,omitempty"`
	UserTeamRole       int    `json:"userTeamRole,omitempty"`
	ChatID             string `json:"chatId,omitempty"`
	LoginHint          string `json:"loginHint,omitempty"`
	UserPrincipalName  string `json:"userPrincipalName,omitempty"`
	UserObjectID       string `json:"userObjectId,omitempty"`
	IsTeamArchived     bool   `json:"isTeamArchived,omitempty"`
	HostClientType     string `json:"hostClientType,omitempty"`
}

// TabInstanceParameters filters tab instance queries.
type TabInstanceParameters struct {
	FavoriteChannelsOnly bool `json:"favoriteChannelsOnly,omitempty"`
	FavoriteTeamsOnly    bool `json:"favoriteTeamsOnly,omitempty"`
}

// TabInstance describes one configured tab.
type TabInstance struct {
	TabName               string `json:"tabName,omitempty"`
	InternalTabInstanceID string `json:"internalTabInstanceId,omitempty"`
	LastViewUnixEpochTime string `json:"lastViewUnixEpochTime,omitempty"`
	EntityID              string `json:"entityId,omitempty"`
	ChannelID             string `json:"channelId,omitempty"`
	ChannelName           string `json:"channelName,omitempty"`
	ChannelIsFavorite     bool   `json:"channelIsFavorite,omitempty"`
	TeamID                string `json:"teamId,omitempty"`
	TeamName              string `json:"teamName,omitempty"`
	TeamIsFavorite        bool   `json:"teamIsFavorite,omitempty"`
	GroupID               string `json:"groupId,omitempty"`
	URL                   string `json:"url,omitempty"`
	WebsiteURL            string `json:"websiteUrl,omitempty"`
}

// TabInformation is the reply to getTabInstances and getMruTabInstances.
type TabInformation struct {
	Teams []TabInstance `json:"teamTabs"`
}

// DeepLinkParameters describe a deep link into a sub-entity of the tab.
type DeepLinkParameters struct {
	SubEntityID     string
	SubEntityLabel  string
	SubEntityWebURL string
}

// FilePreviewParameters describe a file to preview in the host.
type FilePreviewParameters struct {
	EntityID      string
	Title         string
	Description   string
	Type          string
	ObjectURL     string
	DownloadURL   string
	WebPreviewURL string
	WebEditURL    string
}
