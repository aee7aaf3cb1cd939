package bot

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	coreconfig "github.com/quicknotes/studybot/core/config"
	"github.com/quicknotes/studybot/core/telegram/callbacks"
	"github.com/quicknotes/studybot/core/telegram/format"
	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"
	"github.com/quicknotes/studybot/core/telegram/keyboard"
	"github.com/quicknotes/studybot/internal/access"
	"github.com/quicknotes/studybot/internal/catalog"

	tele "gopkg.in/telebot.v4"
)

// conversionRevenue is the accounting value of one completed verification.
const conversionRevenue = 0.02

// cbSelectMaterial is the entry point of the download flow. The gating
// engine decides whether the file goes out now, costs a free slot, or
// requires ad verification first.
func (a *App) cbSelectMaterial(c tele.Context) error {
	refStr := callbacks.CallbackPayload(c)
	ref, err := catalog.ParseRef(refStr)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "❌ This material link is no longer valid.", backToBrowseMarkup())
	}
	if _, ok := a.catalog.Get(ref); !ok {
		return tghelpers.EditOrSendMD(c, "❌ Material not found. It may have been moved.", backToBrowseMarkup())
	}

	ad := a.pickAd()
	out := a.engine.RequestDownload(c.Sender().ID, refStr, ad.ID)

	switch out.Decision {
	case access.Delivered:
		return a.deliver(c, out)
	case access.UseFreeSlot:
		return a.promptFreeSlot(c, ref, out)
	case access.ShowAdPrompt:
		return a.promptAd(c, ref, ad, out.SessionToken)
	default:
		return tghelpers.EditOrSendMD(c, "❌ Something went wrong. Please try again.", backToBrowseMarkup())
	}
}

func (a *App) promptFreeSlot(c tele.Context, ref catalog.Ref, out access.Outcome) error {
	m, _ := a.catalog.Get(ref)
	title, _ := format.EscapeMarkdown(m.Title, format.MarkdownV1)

	markup := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{
			Text:   fmt.Sprintf("📥 Use 1 free download (%d left)", out.FreeLeft),
			Unique: cbFreeConfirm,
			Data:   ref.String(),
		}},
		[]keyboard.InlineBtn{{
			Text:   "❌ Cancel",
			Unique: cbSubject,
			Data:   strings.Join([]string{ref.Branch, ref.Semester, ref.Subject}, refSep),
		}},
	)
	return tghelpers.EditOrSendMD(c,
		fmt.Sprintf("*%s*\n\nThis download will use one of your free slots.", title),
		markup,
	)
}

func (a *App) cbConfirmFreeSlot(c tele.Context) error {
	refStr := callbacks.CallbackPayload(c)
	ref, err := catalog.ParseRef(refStr)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "❌ This material link is no longer valid.", backToBrowseMarkup())
	}

	ad := a.pickAd()
	out := a.engine.ConfirmFreeSlot(c.Sender().ID, refStr, ad.ID)

	switch out.Decision {
	case access.Delivered:
		return a.deliver(c, out)
	case access.ShowAdPrompt:
		// The quota ran out between prompt and confirmation.
		return a.promptAd(c, ref, ad, out.SessionToken)
	default:
		return tghelpers.EditOrSendMD(c, "❌ Something went wrong. Please try again.", backToBrowseMarkup())
	}
}

// promptAd shows the sponsor link and the verification controls.
// The impression is counted here, once per prompt.
func (a *App) promptAd(c tele.Context, ref catalog.Ref, ad coreconfig.Ad, sessionToken string) error {
	m, _ := a.catalog.Get(ref)
	title, _ := format.EscapeMarkdown(m.Title, format.MarkdownV1)

	text := fmt.Sprintf(
		"📢 *Free downloads used up*\n\n"+
			"To download *%s*:\n\n"+
			"1. 🔗 Open the sponsor link below\n"+
			"2. ✅ Tap \"I've opened the link\"\n"+
			"3. ⏳ Wait %d seconds and tap \"Verify & Download\"\n\n"+
			"Completing this gives you *%.0f hours of unlimited downloads*. This keeps the bot free for everyone 🙏",
		title, a.cfg.Access.WaitTimeSeconds, a.cfg.Access.TokenDurationHours,
	)

	var rows [][]keyboard.InlineBtn
	if url := a.adURL(ad, c.Sender().ID, sessionToken); url != "" {
		sponsor := ad.Text
		if sponsor == "" {
			sponsor = "Sponsor link"
		}
		rows = append(rows, []keyboard.InlineBtn{{Text: "🔗 " + sponsor, URL: url}})
	}
	clickPayload := sessionToken + refSep + ad.ID
	rows = append(rows,
		[]keyboard.InlineBtn{{Text: "✅ I've opened the link", Unique: cbAdClick, Data: clickPayload}},
		[]keyboard.InlineBtn{{Text: "🔄 Verify & Download", Unique: cbVerify, Data: clickPayload}},
		[]keyboard.InlineBtn{{
			Text:   "❌ Cancel",
			Unique: cbSubject,
			Data:   strings.Join([]string{ref.Branch, ref.Semester, ref.Subject}, refSep),
		}},
	)

	a.tracker.RecordImpression(ad.ID)
	return tghelpers.EditOrSendMD(c, text, keyboard.InlineButtonsRows(rows...))
}

func (a *App) cbAdClicked(c tele.Context) error {
	token, adID, ok := splitVerifyPayload(c)
	if !ok {
		return tghelpers.EditOrSendMD(c, expiredSessionText(), backToBrowseMarkup())
	}

	if err := a.engine.MarkAdClicked(token); err != nil {
		return tghelpers.EditOrSendMD(c, expiredSessionText(), backToBrowseMarkup())
	}
	a.tracker.RecordClick(adID)

	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "🔄 Verify & Download", Unique: cbVerify, Data: token + refSep + adID},
	})
	return tghelpers.EditOrSendMD(c,
		fmt.Sprintf("⏳ Timer started! Wait *%d seconds*, then tap Verify & Download.", a.cfg.Access.WaitTimeSeconds),
		markup,
	)
}

func (a *App) cbVerifyDownload(c tele.Context) error {
	token, adID, ok := splitVerifyPayload(c)
	if !ok {
		return tghelpers.EditOrSendMD(c, expiredSessionText(), backToBrowseMarkup())
	}

	out := a.engine.CheckVerification(token)
	switch out.Decision {
	case access.Delivered:
		if out.TokenGranted {
			a.tracker.RecordConversion(adID, conversionRevenue)
		}
		return a.deliver(c, out)
	case access.AdNotClicked:
		markup := keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: "✅ I've opened the link", Unique: cbAdClick, Data: token + refSep + adID},
		})
		return tghelpers.EditOrSendMD(c, "⚠️ Open the sponsor link first, then confirm below.", markup)
	case access.StillWaiting:
		markup := keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: "🔄 Verify & Download", Unique: cbVerify, Data: token + refSep + adID},
		})
		return tghelpers.EditOrSendMD(c,
			fmt.Sprintf("⏳ Almost there - *%d seconds* to go.", out.RemainingSeconds),
			markup,
		)
	default:
		return tghelpers.EditOrSendMD(c, expiredSessionText(), backToBrowseMarkup())
	}
}

// deliver sends the material document and a context-appropriate note.
func (a *App) deliver(c tele.Context, out access.Outcome) error {
	ref, err := catalog.ParseRef(out.MaterialRef)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "❌ This material link is no longer valid.", backToBrowseMarkup())
	}
	m, ok := a.catalog.Get(ref)
	if !ok {
		return tghelpers.EditOrSendMD(c, "❌ Material not found. It may have been moved.", backToBrowseMarkup())
	}

	title, _ := format.EscapeMarkdown(m.Title, format.MarkdownV1)
	var note string
	switch {
	case out.TokenGranted:
		note = fmt.Sprintf("🎉 Verified! You now have *unlimited downloads* until %s.",
			out.TokenExpiresAt.Format("15:04 MST, Jan 2"))
	case out.ViaToken && out.TokenExpiresAt.IsZero():
		// Re-delivery from a completed session whose token already expired.
		note = "Enjoy! 📚"
	case out.ViaToken:
		note = fmt.Sprintf("⚡ Unlimited access active until %s.",
			out.TokenExpiresAt.Format("15:04 MST, Jan 2"))
	case !a.engine.Enabled():
		note = "Enjoy! 📚"
	default:
		note = fmt.Sprintf("📥 Free download used. *%d* remaining in this window.", out.FreeLeft)
	}

	if err := tghelpers.EditOrSendMD(c, fmt.Sprintf("📄 *%s*\n\n%s", title, note), backToBrowseMarkup()); err != nil {
		return err
	}

	doc := &tele.Document{
		File:     tele.File{FileID: m.FileID},
		FileName: m.Title,
	}
	return tghelpers.SendDocument(c, doc)
}

// pickAd chooses a sponsor link at random. With no ads configured the
// flow still runs; the prompt simply has no link button.
func (a *App) pickAd() coreconfig.Ad {
	ads := a.cfg.Ads
	if len(ads) == 0 {
		return coreconfig.Ad{ID: "none"}
	}
	return ads[rand.Intn(len(ads))]
}

// adURL renders the outbound link, preferring the tracking URL with the
// user id and session token substituted in.
func (a *App) adURL(ad coreconfig.Ad, userID int64, sessionToken string) string {
	if ad.TrackingURL != "" {
		url := strings.ReplaceAll(ad.TrackingURL, "{user_id}", strconv.FormatInt(userID, 10))
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		return url + sep + "token=" + sessionToken
	}
	return ad.URL
}

// splitVerifyPayload decodes "sessionToken:adID" callback payloads.
func splitVerifyPayload(c tele.Context) (token, adID string, ok bool) {
	parts, err := callbacks.PayloadParts(c, refSep)
	if err != nil || len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func expiredSessionText() string {
	return "⌛ This verification session has expired. Pick the material again to restart."
}
