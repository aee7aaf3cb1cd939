package bot

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/quicknotes/studybot/core/telegram/format"
	tghelpers "github.com/quicknotes/studybot/core/telegram/helpers"
	"github.com/quicknotes/studybot/internal/catalog"

	tele "gopkg.in/telebot.v4"
)

func uploadDetailsPrompt(branches []string, maxSemester int) string {
	return "📤 *Upload a study material*\n\n" +
		"Send the details as one comma-separated line:\n\n" +
		"`Branch, Semester, Subject, Title, Keyword1, Keyword2`\n\n" +
		fmt.Sprintf("Example: `CSE, 4, DBMS, Unit 1 Notes, normalization, sql`\n\n"+
			"Branches: %s. Semester: 1-%d.\n\nType /cancel to stop.",
			strings.Join(branches, ", "), maxSemester)
}

func (a *App) handleUploadStart(c tele.Context) error {
	userID := c.Sender().ID
	a.fsm.Clear(userID)
	a.fsm.SetState(userID, stateUploadDetails)
	return tghelpers.SendMD(c, uploadDetailsPrompt(a.cfg.Catalog.Branches, a.cfg.Catalog.MaxSemester))
}

// fsmUploadDetails consumes the metadata line. Invalid input keeps the
// state so the uploader can correct it without restarting.
func (a *App) fsmUploadDetails(c tele.Context) error {
	if handled, err := a.fsmInterceptCommand(c); handled {
		return err
	}
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return tghelpers.SendText(c, "Please send the details line, or /cancel.")
	}

	details, err := catalog.ParseUploadDetails(text, a.cfg.Catalog.Branches, a.cfg.Catalog.MaxSemester)
	if err != nil {
		return tghelpers.SendMD(c, fmt.Sprintf("⚠️ %s\n\nTry again or type /cancel.", err.Error()))
	}

	userID := c.Sender().ID
	a.fsm.SetTemp(userID, tempUploadDetails, details)
	a.fsm.SetState(userID, stateUploadFile)

	title, _ := format.EscapeMarkdown(details.Title, format.MarkdownV1)
	return tghelpers.SendMD(c, fmt.Sprintf(
		"✅ Details saved: *%s* (%s, Semester %s, %s)\n\nNow send the file as a document.",
		title, details.Branch, details.Semester, details.Subject,
	))
}

// fsmUploadFile consumes the attached document and commits the material.
func (a *App) fsmUploadFile(c tele.Context) error {
	userID := c.Sender().ID

	msg := c.Message()
	if msg == nil || msg.Document == nil {
		if handled, err := a.fsmInterceptCommand(c); handled {
			return err
		}
		return tghelpers.SendText(c, "Please attach the file as a document, or /cancel.")
	}
	doc := msg.Document

	if err := a.validateUploadFile(doc); err != nil {
		return tghelpers.SendMD(c, fmt.Sprintf("⚠️ %s\n\nSend a different file or type /cancel.", err.Error()))
	}

	raw, ok := a.fsm.GetTemp(userID, tempUploadDetails)
	if !ok {
		a.fsm.Clear(userID)
		return tghelpers.SendText(c, "Upload details were lost. Start again with /upload.")
	}
	details, ok := raw.(catalog.UploadDetails)
	if !ok {
		a.fsm.Clear(userID)
		return tghelpers.SendText(c, "Upload details were lost. Start again with /upload.")
	}

	uploadedBy := c.Sender().Username
	if uploadedBy == "" {
		uploadedBy = fmt.Sprintf("id:%d", userID)
	}
	ref := a.catalog.Add(details.Branch, details.Semester, details.Subject, catalog.Material{
		Title:      details.Title,
		FileID:     doc.FileID,
		Type:       "document",
		Keywords:   details.Keywords,
		UploadedBy: uploadedBy,
		UploadedAt: time.Now().UTC().Format(time.RFC3339),
	})
	a.fsm.Clear(userID)

	title, _ := format.EscapeMarkdown(details.Title, format.MarkdownV1)
	return tghelpers.SendMD(c, fmt.Sprintf(
		"🎉 Uploaded *%s* to %s / Semester %s / %s.\n\nStudents can find it under /browse now.",
		title, ref.Branch, ref.Semester, ref.Subject,
	), a.mainMenuMarkup())
}

func (a *App) validateUploadFile(doc *tele.Document) error {
	if a.cfg.Catalog.MaxUploadBytes > 0 && doc.FileSize > a.cfg.Catalog.MaxUploadBytes {
		return fmt.Errorf("file is too large (%.1f MB, limit %.1f MB)",
			float64(doc.FileSize)/(1024*1024),
			float64(a.cfg.Catalog.MaxUploadBytes)/(1024*1024))
	}
	if doc.FileName == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext == "" {
		return nil
	}
	for _, allowed := range a.cfg.Catalog.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("file type %s is not allowed (allowed: %s)",
		ext, strings.Join(a.cfg.Catalog.AllowedExtensions, ", "))
}
