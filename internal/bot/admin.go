package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

func (a *App) handleStats(c tele.Context) error {
	users := a.tracker.UserStats()
	branches, materials := a.catalog.Count()

	text := "📊 *Bot statistics*\n\n" +
		fmt.Sprintf("👥 Unique users: %d\n", users.UniqueUsers) +
		fmt.Sprintf("🟢 Active (30 days): %d\n", users.ActiveUsers) +
		fmt.Sprintf("💬 Total interactions: %d\n\n", users.TotalInteractions) +
		fmt.Sprintf("📚 Branches with materials: %d\n", branches) +
		fmt.Sprintf("📄 Materials: %d", materials)
	return tghelpers.SendMD(c, text)
}

func (a *App) handleAdStats(c tele.Context) error {
	rep := a.tracker.AdStats()

	text := "📢 *Ad performance report*\n\n" +
		fmt.Sprintf("💰 Revenue: $%.2f\n", rep.RevenueEarned) +
		fmt.Sprintf("👁 Impressions: %d\n", rep.TotalImpressions) +
		fmt.Sprintf("✅ Conversions: %d\n", rep.Conversions)

	if len(rep.PerAd) > 0 {
		text += "\n*Per ad:*\n"
		for _, row := range rep.PerAd {
			rate := 0.0
			if row.Clicks > 0 {
				rate = float64(row.Conversions) / float64(row.Clicks) * 100
			}
			text += fmt.Sprintf("• %s: %d impressions, %d clicks, %d conversions (%.1f%%)\n",
				row.AdID, row.Impressions, row.Clicks, row.Conversions, rate)
		}
	}
	return tghelpers.SendMD(c, text)
}

func (a *App) handleToggleAds(c tele.Context) error {
	on := a.engine.SetEnabled(!a.engine.Enabled())
	status := "DISABLED ❌"
	if on {
		status = "ENABLED ✅"
	}
	return tghelpers.SendMD(c, fmt.Sprintf("📢 Ad verification is now *%s*.", status))
}

func (a *App) handleForceSave(c tele.Context) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.store.Flush(ctx)
	return tghelpers.SendMD(c, fmt.Sprintf("💾 Flush finished in %s.", time.Since(started).Round(time.Millisecond)))
}

func (a *App) handleResetUser(c tele.Context) error {
	target, err := argUserID(c.Text())
	if err != nil {
		return tghelpers.SendMD(c, "Usage: `/resetuser <user_id>`")
	}
	a.engine.ResetUser(target)
	return tghelpers.SendMD(c, fmt.Sprintf("♻️ Quota, token, and sessions reset for user `%d`.", target))
}

func (a *App) handleDebugUser(c tele.Context) error {
	target, err := argUserID(c.Text())
	if err != nil {
		return tghelpers.SendMD(c, "Usage: `/debuguser <user_id>`")
	}

	st := a.engine.Status(target)
	text := fmt.Sprintf("🔬 *Gating state for* `%d`\n\n", target) +
		fmt.Sprintf("Free used: %d/%d\n", st.FreeUsed, st.FreeAllowed) +
		fmt.Sprintf("Reset at: %s\n", formatMaybeZero(st.FreeResetAt)) +
		fmt.Sprintf("Total downloads: %d\n", st.TotalDownloads) +
		fmt.Sprintf("Tokens earned: %d\n", st.TokensEarned) +
		fmt.Sprintf("Token active: %v", st.TokenActive)
	if st.TokenActive {
		text += fmt.Sprintf(" (expires %s)", st.TokenExpiresAt.Format(time.RFC3339))
	}
	return tghelpers.SendMD(c, text)
}

func argUserID(text string) (int64, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, fmt.Errorf("missing user id")
	}
	return strconv.ParseInt(fields[1], 10, 64)
}

func formatMaybeZero(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
