package cards

import "taskmodule/relay"

// Task module ids, as used by fetch buttons and tab buttons.
const (
	YouTube       = "youtube"
	PowerApp      = "powerapp"
	CustomForm    = "customform"
	AdaptiveCard  = "adaptivecard"
	AdaptiveCard1 = "adaptivecard1"
	AdaptiveCard2 = "adaptivecard2"
)

// Task module titles and display names.
const (
	YouTubeTitle              = "Satya Nadella's Build 2018 Keynote"
	PowerAppTitle             = "PowerApp: Asset Checkout"
	CustomFormTitle           = "Custom Form"
	AdaptiveCardTitle         = "Adaptive Card: Inputs"
	ActionSubmitResponseTitle = "Action.Submit Response"

	YouTubeName      = "YouTube"
	PowerAppName     = "PowerApp"
	CustomFormName   = "Custom Form"
	AdaptiveCardName = "Adaptive Card"
)

// Dialog ids.
const (
	DialogRoot     = "/"
	DialogACTester = "actester"
)

// URLPlaceholders is the query string hosts expand with the tab context.
const URLPlaceholders = "loginHint={loginHint}&upn={userPrincipalName}&aadId={userObjectId}&theme={theme}&groupId={groupId}&tenantId={tid}&locale={locale}"

// Size is a task module height and width.
type Size struct {
	Height relay.Dimension
	Width  relay.Dimension
}

// Sizes used by the bot's fetch templates.
var Sizes = map[string]Size{
	YouTube:      {Height: "80", Width: "80"},
	PowerApp:     {Height: "60", Width: "70"},
	CustomForm:   {Height: "40", Width: "30"},
	AdaptiveCard: {Height: "large", Width: "medium"},
}

// Paths maps task module ids to the page serving them.
var Paths = map[string]string{
	YouTube:    "youtube",
	PowerApp:   "powerapps",
	CustomForm: "customform",
}
