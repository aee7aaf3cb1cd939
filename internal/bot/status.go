package bot

import (
	"fmt"
	"time"

	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

func (a *App) statusText(userID int64) string {
	st := a.engine.Status(userID)

	text := "📊 *Your download status*\n\n"
	if st.TokenActive {
		text += fmt.Sprintf("⚡ *Unlimited access active* until %s (%s left)\n\n",
			st.TokenExpiresAt.Format("15:04 MST, Jan 2"),
			humanDuration(time.Until(st.TokenExpiresAt)),
		)
	} else {
		left := uint(0)
		if st.FreeAllowed > st.FreeUsed {
			left = st.FreeAllowed - st.FreeUsed
		}
		text += fmt.Sprintf("📥 Free downloads: *%d of %d* remaining\n", left, st.FreeAllowed)
		if st.FreeUsed > 0 && !st.FreeResetAt.IsZero() {
			text += fmt.Sprintf("🔄 Quota refills at %s\n", st.FreeResetAt.Format("15:04 MST, Jan 2"))
		}
		text += "\n"
	}
	text += fmt.Sprintf("📈 Total downloads: %d\n", st.TotalDownloads)
	text += fmt.Sprintf("🎟 Access tokens earned: %d", st.TokensEarned)
	return text
}

func (a *App) handleStatus(c tele.Context) error {
	return tghelpers.SendMD(c, a.statusText(c.Sender().ID), backToMenuMarkup())
}

func (a *App) cbStatusView(c tele.Context) error {
	return tghelpers.EditOrSendMD(c, a.statusText(c.Sender().ID), backToMenuMarkup())
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
