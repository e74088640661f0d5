package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"taskmodule/cards"
	"taskmodule/storage"
)

// Dialog handles messages routed to it while it is on top of the stack.
type Dialog interface {
	ID() string
	Run(s *Session) error
}

// Session is one turn of a conversation.
type Session struct {
	ctx     context.Context
	bot     *Bot
	Message *Activity
	State   *storage.ConversationState
}

// Context returns the turn's context.
func (s *Session) Context() context.Context { return s.ctx }

// Send replies with markdown text.
func (s *Session) Send(text string) error {
	return s.bot.sender.Send(s.ctx, s.Message.Reply(text))
}

// SendAttachment replies with a single card.
func (s *Session) SendAttachment(a cards.Attachment) error {
	reply := s.Message.Reply("")
	reply.TextFormat = ""
	reply.Attachments = []cards.Attachment{a}
	return s.bot.sender.Send(s.ctx, reply)
}

// BeginDialog pushes the dialog id and runs it on the current message.
func (s *Session) BeginDialog(id string) error {
	d, ok := s.bot.dialogs[id]
	if !ok {
		return fmt.Errorf("bot: unknown dialog %q", id)
	}
	s.State.DialogStack = append(s.State.DialogStack, id)
	return d.Run(s)
}

// EndDialog pops the active dialog; the root dialog is never popped.
func (s *Session) EndDialog() {
	if n := len(s.State.DialogStack); n > 1 {
		s.State.DialogStack = s.State.DialogStack[:n-1]
	}
}

var acTesterIntent = regexp.MustCompile(`(?i)actester`)

// rootDialog routes the ACTester intent and otherwise answers with the task
// module card.
type rootDialog struct {
	appID   string
	appRoot string
}

func (d *rootDialog) ID() string { return cards.DialogRoot }

func (d *rootDialog) Run(s *Session) error {
	msg := s.Message
	if acTesterIntent.MatchString(msg.Text) {
		return s.BeginDialog(cards.DialogACTester)
	}

	if msg.Text == "" {
		// Action.Submit from a card the bot sent.
		if msg.Value == nil {
			return nil
		}
		b, err := json.Marshal(msg.Value)
		if err != nil {
			return fmt.Errorf("bot: encode submit value: %w", err)
		}
		return s.Send("**Action.Submit results:** " + string(b))
	}

	data, err := cards.TaskModuleCardData(d.appID, d.appRoot)
	if err != nil {
		return err
	}
	card, err := cards.Render(cards.TaskModuleCard, data)
	if err != nil {
		return err
	}
	return s.SendAttachment(card)
}

// acTesterDialog renders the JSON following the keyword as an adaptive card,
// or the sample inputs card when there is none.
type acTesterDialog struct{}

func (acTesterDialog) ID() string { return cards.DialogACTester }

func (acTesterDialog) Run(s *Session) error {
	defer s.EndDialog()

	text := s.Message.TextWithoutMentions()
	rest := text
	if loc := acTesterIntent.FindStringIndex(text); loc != nil {
		rest = strings.TrimSpace(text[loc[1]:])
	}

	var content map[string]any
	if rest != "" && json.Unmarshal([]byte(rest), &content) == nil {
		return s.SendAttachment(cards.Attachment{ContentType: cards.AdaptiveCardContentType, Content: content})
	}

	card, err := cards.Render(cards.AdaptiveCardInputs, map[string]string{"source": cards.DialogACTester})
	if err != nil {
		return err
	}
	return s.SendAttachment(card)
}
