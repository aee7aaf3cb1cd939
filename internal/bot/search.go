package bot

import (
	"fmt"
	"strings"

	"github.com/quicknotes/studybot/core/telegram/format"
	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"
	"github.com/quicknotes/studybot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// handleSearchCommand accepts "/search <query>" directly or opens a
// prompt and waits for the query as the next message.
func (a *App) handleSearchCommand(c tele.Context) error {
	query := strings.TrimSpace(strings.TrimPrefix(c.Text(), "/search"))
	if query != "" {
		return a.runSearch(c, query)
	}
	a.fsm.SetState(c.Sender().ID, stateSearchQuery)
	return tghelpers.SendMD(c, "🔍 What are you looking for? Send a title, keyword, or subject.\n\nType /cancel to stop.")
}

func (a *App) cbSearchPrompt(c tele.Context) error {
	a.fsm.SetState(c.Sender().ID, stateSearchQuery)
	return tghelpers.EditOrSendMD(c, "🔍 What are you looking for? Send a title, keyword, or subject.\n\nType /cancel to stop.")
}

// fsmSearchQuery consumes the query message while the search state is active.
func (a *App) fsmSearchQuery(c tele.Context) error {
	if handled, err := a.fsmInterceptCommand(c); handled {
		return err
	}
	a.fsm.ClearState(c.Sender().ID)
	return a.runSearch(c, strings.TrimSpace(c.Text()))
}

func (a *App) runSearch(c tele.Context, query string) error {
	if query == "" {
		return tghelpers.SendMD(c, "Please send a non-empty search query.", backToMenuMarkup())
	}

	results := a.catalog.Search(query, a.cfg.Catalog.MaxSearchResults)
	escaped, _ := format.EscapeMarkdown(query, format.MarkdownV1)
	if len(results) == 0 {
		return tghelpers.SendMD(c,
			fmt.Sprintf("🔍 No materials found for *%s*. Try a different keyword or /browse.", escaped),
			backToMenuMarkup(),
		)
	}

	btns := make([]keyboard.InlineBtn, 0, len(results))
	for _, res := range results {
		label := fmt.Sprintf("📄 %s (%s S%s)", res.Material.Title, res.Ref.Branch, res.Ref.Semester)
		btns = append(btns, keyboard.InlineBtn{
			Text:   label,
			Unique: cbMaterial,
			Data:   res.Ref.String(),
		})
	}
	markup := keyboard.InlineButtons(btns)
	markup.InlineKeyboard = append(markup.InlineKeyboard, navRow(
		keyboard.InlineBtn{Text: "🏠 Main Menu", Unique: cbMenu},
	))
	return tghelpers.SendMD(c,
		fmt.Sprintf("🔍 Found *%d* material(s) for *%s*:", len(results), escaped),
		markup,
	)
}
