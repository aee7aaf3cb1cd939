package bot

import (
	"fmt"

	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"
	"github.com/quicknotes/studybot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

func (a *App) mainMenuMarkup() *tele.ReplyMarkup {
	rows := [][]keyboard.InlineBtn{
		{
			{Text: "📚 Browse Materials", Unique: cbBrowse},
			{Text: "🔍 Search", Unique: cbSearch},
		},
		{
			{Text: "📊 My Status", Unique: cbStatus},
			{Text: "❓ Help", Unique: cbHelp},
		},
		{
			{Text: "💝 Donate", Unique: cbDonate},
		},
	}
	return keyboard.InlineButtonsRows(rows...)
}

func (a *App) welcomeText(c tele.Context) string {
	name := "there"
	if s := c.Sender(); s != nil && s.FirstName != "" {
		name = s.FirstName
	}
	text := fmt.Sprintf(
		"👋 Hi %s!\n\n"+
			"I can help you find study materials for your branch and semester.\n\n"+
			"Use the buttons below or type /help to see what I can do.",
		name,
	)
	userID := c.Sender().ID
	switch {
	case a.roles.IsAdmin(userID):
		text += "\n\n🛠 Admin commands: /stats /adstats /toggleads /forcesave /resetuser /debuguser"
	case a.roles.IsTeam(userID):
		text += "\n\n📤 Team: use /upload to add new materials."
	}
	return text
}

func (a *App) handleStart(c tele.Context) error {
	return tghelpers.SendMD(c, a.welcomeText(c), a.mainMenuMarkup())
}

func (a *App) cbMainMenu(c tele.Context) error {
	return tghelpers.EditOrSendMD(c, a.welcomeText(c), a.mainMenuMarkup())
}

func helpText() string {
	return "📖 *How to use this bot*\n\n" +
		"• /browse - pick your branch, semester, and subject to list materials\n" +
		"• /search - find materials by title, keyword, or subject\n" +
		"• /status - see your free downloads and access token\n" +
		"• /donate - support the project\n\n" +
		"Downloads are free up to a small quota that refills every few hours. " +
		"After that you can earn temporary unlimited access by viewing a sponsor link."
}

func (a *App) handleHelp(c tele.Context) error {
	return tghelpers.SendMD(c, helpText(), backToMenuMarkup())
}

func (a *App) cbHelpView(c tele.Context) error {
	return tghelpers.EditOrSendMD(c, helpText(), backToMenuMarkup())
}

func (a *App) donateText() string {
	text := "💝 *Support the project*\n\nThis bot is free to use. If it helped you, consider donating:\n"
	if a.cfg.Donate.UPI != "" {
		text += fmt.Sprintf("\n• UPI: `%s`", a.cfg.Donate.UPI)
	}
	if a.cfg.Donate.PayPal != "" {
		text += fmt.Sprintf("\n• PayPal: %s", a.cfg.Donate.PayPal)
	}
	if a.cfg.Donate.Bitcoin != "" {
		text += fmt.Sprintf("\n• Bitcoin: `%s`", a.cfg.Donate.Bitcoin)
	}
	if a.cfg.Donate.UPI == "" && a.cfg.Donate.PayPal == "" && a.cfg.Donate.Bitcoin == "" {
		text += "\nNo donation methods are configured right now."
	}
	return text
}

func (a *App) handleDonate(c tele.Context) error {
	return tghelpers.SendMD(c, a.donateText(), backToMenuMarkup())
}

func (a *App) cbDonateView(c tele.Context) error {
	return tghelpers.EditOrSendMD(c, a.donateText(), backToMenuMarkup())
}

func (a *App) handleCancel(c tele.Context) error {
	userID := c.Sender().ID
	if !a.fsm.InProgress(userID) {
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	a.fsm.Clear(userID)
	return tghelpers.SendMD(c, "Operation cancelled.", a.mainMenuMarkup())
}

func (a *App) handleAccessDenied(c tele.Context) error {
	return tghelpers.SendText(c, "❌ You are not allowed to use this command.")
}

func (a *App) handleUnknownText(c tele.Context) error {
	return tghelpers.SendMD(c,
		"I didn't understand that. Use the menu below or /help.",
		a.mainMenuMarkup(),
	)
}

func (a *App) handleUnexpectedDocument(c tele.Context) error {
	return tghelpers.SendText(c, "I wasn't expecting a file. Team members start uploads with /upload.")
}

// UnknownText implements ui.FallbackProvider.
func (a *App) UnknownText() tele.HandlerFunc { return a.handleUnknownText }

// UnknownDocument implements ui.FallbackProvider.
func (a *App) UnknownDocument() tele.HandlerFunc { return a.handleUnexpectedDocument }

// UnknownCallback implements ui.FallbackProvider.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = c.Respond(&tele.CallbackResponse{Text: "This button is no longer active"})
		return a.cbMainMenu(c)
	}
}

func backToMenuMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "🏠 Main Menu", Unique: cbMenu},
	})
}
