package bot

import (
	"fmt"
	"strings"

	"github.com/quicknotes/studybot/core/telegram/callbacks"
	"github.com/quicknotes/studybot/core/telegram/format"
	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"
	"github.com/quicknotes/studybot/core/telegram/keyboard"
	"github.com/quicknotes/studybot/internal/catalog"

	tele "gopkg.in/telebot.v4"
)

// Browse payloads reuse the material-ref separator: "CSE", "CSE:4",
// "CSE:4:DBMS", and finally a full ref with the material index.
const refSep = ":"

func (a *App) handleBrowse(c tele.Context) error {
	text, markup := a.branchMenu()
	return tghelpers.SendMD(c, text, markup)
}

func (a *App) cbBrowseMenu(c tele.Context) error {
	text, markup := a.branchMenu()
	return tghelpers.EditOrSendMD(c, text, markup)
}

func (a *App) branchMenu() (string, *tele.ReplyMarkup) {
	branches := a.catalog.Branches()
	if len(branches) == 0 {
		return "📭 No study materials have been uploaded yet. Check back soon!", backToMenuMarkup()
	}

	btns := make([]keyboard.InlineBtn, 0, len(branches))
	for _, b := range branches {
		btns = append(btns, keyboard.InlineBtn{Text: b, Unique: cbBranch, Data: b})
	}
	markup := keyboard.InlineButtonsNPerRow(btns, 2)
	markup.InlineKeyboard = append(markup.InlineKeyboard, navRow(keyboard.InlineBtn{Text: "🏠 Main Menu", Unique: cbMenu}))
	return "📚 *Choose your branch:*", markup
}

func (a *App) cbSelectBranch(c tele.Context) error {
	branch := callbacks.CallbackPayload(c)
	sems := a.catalog.Semesters(branch)
	if len(sems) == 0 {
		return tghelpers.EditOrSendMD(c, "📭 No materials for this branch yet.", backToBrowseMarkup())
	}

	btns := make([]keyboard.InlineBtn, 0, len(sems))
	for _, s := range sems {
		btns = append(btns, keyboard.InlineBtn{
			Text:   "Semester " + s,
			Unique: cbSemester,
			Data:   branch + refSep + s,
		})
	}
	markup := keyboard.InlineButtonsNPerRow(btns, 2)
	markup.InlineKeyboard = append(markup.InlineKeyboard, navRow(
		keyboard.InlineBtn{Text: "⬅️ Branches", Unique: cbBrowse},
		keyboard.InlineBtn{Text: "🏠 Main Menu", Unique: cbMenu},
	))
	return tghelpers.EditOrSendMD(c, fmt.Sprintf("🎓 *%s* - choose your semester:", branch), markup)
}

func (a *App) cbSelectSemester(c tele.Context) error {
	parts, err := callbacks.PayloadParts(c, refSep)
	if err != nil || len(parts) != 2 {
		return a.cbBrowseMenu(c)
	}
	branch, sem := parts[0], parts[1]

	subjects := a.catalog.Subjects(branch, sem)
	if len(subjects) == 0 {
		return tghelpers.EditOrSendMD(c, "📭 No materials for this semester yet.", backToBrowseMarkup())
	}

	btns := make([]keyboard.InlineBtn, 0, len(subjects))
	for _, subj := range subjects {
		btns = append(btns, keyboard.InlineBtn{
			Text:   subj,
			Unique: cbSubject,
			Data:   strings.Join([]string{branch, sem, subj}, refSep),
		})
	}
	markup := keyboard.InlineButtons(btns)
	markup.InlineKeyboard = append(markup.InlineKeyboard, navRow(
		keyboard.InlineBtn{Text: "⬅️ Semesters", Unique: cbBranch, Data: branch},
		keyboard.InlineBtn{Text: "🏠 Main Menu", Unique: cbMenu},
	))
	return tghelpers.EditOrSendMD(c,
		fmt.Sprintf("📖 *%s / Semester %s* - choose a subject:", branch, sem),
		markup,
	)
}

func (a *App) cbSelectSubject(c tele.Context) error {
	parts, err := callbacks.PayloadParts(c, refSep)
	if err != nil || len(parts) != 3 {
		return a.cbBrowseMenu(c)
	}
	branch, sem, subj := parts[0], parts[1], parts[2]

	materials := a.catalog.Materials(branch, sem, subj)
	if len(materials) == 0 {
		return tghelpers.EditOrSendMD(c, "📭 No materials for this subject yet.", backToBrowseMarkup())
	}

	btns := make([]keyboard.InlineBtn, 0, len(materials))
	for i, m := range materials {
		ref := catalog.Ref{Branch: branch, Semester: sem, Subject: subj, Index: i}
		btns = append(btns, keyboard.InlineBtn{
			Text:   "📄 " + m.Title,
			Unique: cbMaterial,
			Data:   ref.String(),
		})
	}
	markup := keyboard.InlineButtons(btns)
	markup.InlineKeyboard = append(markup.InlineKeyboard, navRow(
		keyboard.InlineBtn{Text: "⬅️ Subjects", Unique: cbSemester, Data: branch + refSep + sem},
		keyboard.InlineBtn{Text: "🏠 Main Menu", Unique: cbMenu},
	))

	title, _ := format.EscapeMarkdown(subj, format.MarkdownV1)
	return tghelpers.EditOrSendMD(c,
		fmt.Sprintf("📄 *%s* - %d material(s). Tap one to download:", title, len(materials)),
		markup,
	)
}

func navRow(btns ...keyboard.InlineBtn) []tele.InlineButton {
	markup := &tele.ReplyMarkup{}
	row := make([]tele.InlineButton, 0, len(btns))
	for _, b := range btns {
		row = append(row, *markup.Data(b.Text, b.Unique, b.Data).Inline())
	}
	return row
}

func backToBrowseMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "⬅️ Branches", Unique: cbBrowse},
		{Text: "🏠 Main Menu", Unique: cbMenu},
	})
}
