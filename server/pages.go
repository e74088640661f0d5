package server

import (
	"bytes"
	"html/template"
	"net/http"

	"taskmodule/cards"
	"taskmodule/tab"
)

type pageButton struct {
	ID    string
	Label string
}

type pageView struct {
	Title        string
	AppRoot      string
	DeepLinks    map[string]string
	Buttons      []pageButton
	Choices      []string
	Placeholders string
}

type authEndView struct {
	Outcome string
	Reason  string
	Result  string
}

var taskModuleButtons = []pageButton{
	{ID: cards.YouTube, Label: cards.YouTubeName},
	{ID: cards.PowerApp, Label: cards.PowerAppName},
	{ID: cards.CustomForm, Label: cards.CustomFormName},
	{ID: cards.AdaptiveCard, Label: cards.AdaptiveCardName},
}

// page names served at /<name>, with their titles.
var pageTitles = map[string]string{
	"tab":        "Task Module Demo",
	"taskmodule": "Task Module Demo",
	"configure":  "Configure Tab",
	"first":      "First Tab",
	"second":     "Second Tab",
	"youtube":    cards.YouTubeTitle,
	"powerapps":  cards.PowerAppTitle,
	"customform": cards.CustomFormTitle,
}

var pageTemplates = template.Must(template.New("pages").Parse(`
{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="/styles/msteams.css">
<script src="/scripts/MicrosoftTeams.js"></script>
<script src="/scripts/TaskModuleTab.js" defer></script>
</head>
<body class="theme-light" data-app-root="{{.AppRoot}}">
{{end}}

{{define "foot"}}</body>
</html>
{{end}}

{{define "taskmodule"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<section>
<h2>tasks.startTask()</h2>
{{range .Buttons}}<button class="taskModuleButton" id="{{.ID}}">{{.Label}}</button>
{{end}}</section>
<section>
<h2>Deep links</h2>
<ul>
<li><a id="dlYouTube" href="{{index .DeepLinks "dlYouTube"}}">YouTube</a></li>
<li><a id="dlPowerApps" href="{{index .DeepLinks "dlPowerApps"}}">PowerApp</a></li>
<li><a id="dlCustomForm" href="{{index .DeepLinks "dlCustomForm"}}">Custom Form</a></li>
<li><a id="dlAdaptiveCard" href="{{index .DeepLinks "dlAdaptiveCard"}}">Adaptive Card</a></li>
</ul>
</section>
{{template "foot" .}}{{end}}

{{define "tab"}}{{template "taskmodule" .}}{{end}}

{{define "configure"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<label for="tabChoice">Select the tab you would like to see:</label>
<select id="tabChoice" data-placeholders="{{.Placeholders}}">
<option value="" selected>(Select a tab)</option>
{{range .Choices}}<option value="{{.}}">{{.}}</option>
{{end}}</select>
{{template "foot" .}}{{end}}

{{define "first"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<p>This is the first tab.</p>
{{template "foot" .}}{{end}}

{{define "second"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<p>This is the second tab.</p>
{{template "foot" .}}{{end}}

{{define "youtube"}}{{template "head" .}}
<div class="video">
<iframe id="player" title="{{.Title}}" width="100%" height="100%" frameborder="0" allowfullscreen></iframe>
</div>
{{template "foot" .}}{{end}}

{{define "powerapps"}}{{template "head" .}}
<iframe id="powerapp" title="{{.Title}}" width="100%" height="100%" frameborder="0"></iframe>
{{template "foot" .}}{{end}}

{{define "customform"}}{{template "head" .}}
<form id="customForm">
<label for="name">Name</label><input type="text" id="name" name="name">
<label for="email">Email</label><input type="email" id="email" name="email">
<label for="favoriteBook">Favorite book</label><input type="text" id="favoriteBook" name="favoriteBook">
<button type="submit" id="submitTask">Submit</button>
</form>
{{template "foot" .}}{{end}}

{{define "authend"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Sign-in</title>
<script src="/scripts/MicrosoftTeams.js"></script>
<script src="/scripts/TaskModuleTab.js" defer></script>
</head>
<body>
<div id="authResult" data-outcome="{{.Outcome}}" data-reason="{{.Reason}}" data-result="{{.Result}}">
{{if eq .Outcome "success"}}Signed in. This window will close.{{else}}Sign-in failed: {{.Reason}}{{end}}
</div>
</body>
</html>
{{end}}
`))

func (a *App) pageHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := pageView{
			Title:        pageTitles[name],
			AppRoot:      a.appRoot(),
			Buttons:      taskModuleButtons,
			Choices:      []string{tab.ChoiceFirst, tab.ChoiceSecond, tab.ChoiceTaskModule},
			Placeholders: cards.URLPlaceholders,
		}
		if name == "tab" || name == "taskmodule" {
			links, err := tab.DeepLinks(a.tabAppID(), a.appRoot())
			if err != nil {
				a.Logger.Error("page.deep_links", "page", name, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			view.DeepLinks = links
		}
		a.render(w, http.StatusOK, name, view)
	}
}

func (a *App) renderAuthEnd(w http.ResponseWriter, status int, view authEndView) {
	a.render(w, status, "authend", view)
}

func (a *App) render(w http.ResponseWriter, status int, name string, view any) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, view); err != nil {
		a.Logger.Error("page.render", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
