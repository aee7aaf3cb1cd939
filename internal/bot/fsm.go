package bot

import (
	"strings"

	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"
	tgstate "github.com/quicknotes/studybot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// registerFSMHandlers binds conversation states to their handlers.
// The message router hands updates to the FSM while a state is active.
func (a *App) registerFSMHandlers() {
	tgstate.RegisterHandler(stateSearchQuery, a.fsmSearchQuery)
	tgstate.RegisterHandler(stateUploadDetails, a.fsmUploadDetails)
	tgstate.RegisterHandler(stateUploadFile, a.fsmUploadFile)
}

// fsmInterceptCommand cancels the active conversation when the user
// types a command instead of the expected input. The message router
// hands FSM states every update, so commands would otherwise be
// swallowed as conversation input.
func (a *App) fsmInterceptCommand(c tele.Context) (bool, error) {
	text := strings.TrimSpace(c.Text())
	if !strings.HasPrefix(text, "/") {
		return false, nil
	}
	a.fsm.Clear(c.Sender().ID)
	return true, tghelpers.SendMD(c, "Operation cancelled.", a.mainMenuMarkup())
}
