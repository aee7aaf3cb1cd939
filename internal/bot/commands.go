package bot

import (
	coretelegram "github.com/quicknotes/studybot/core/telegram"
	"github.com/quicknotes/studybot/core/telegram/commands"
)

// Callback uniques. Keyboard builders and registry keys must agree on these.
const (
	cbBranch   = "branch"
	cbSemester = "sem"
	cbSubject  = "subj"
	cbMaterial = "mat"

	cbFreeConfirm = "dl_free"
	cbAdClick     = "ad_click"
	cbVerify      = "verify"

	cbMenu   = "menu"
	cbBrowse = "browse"
	cbSearch = "search"
	cbStatus = "status"
	cbHelp   = "help"
	cbDonate = "donate"
)

func (a *App) registerCommands(reg *coretelegram.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Open the main menu",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleHelp,
		Description: "How to use the bot",
	})
	reg.RegisterCommand("/browse", commands.Command{
		Handler:     a.handleBrowse,
		Description: "Browse study materials",
	})
	reg.RegisterCommand("/search", commands.Command{
		Handler:     a.handleSearchCommand,
		Description: "Search materials by keyword",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     a.handleStatus,
		Description: "Your download quota and access status",
	})
	reg.RegisterCommand("/donate", commands.Command{
		Handler:     a.handleDonate,
		Description: "Support the project",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Cancel the current operation",
		Hidden:      true,
	})

	reg.RegisterCommand("/upload", commands.Command{
		Handler:     a.handleUploadStart,
		Description: "Upload a new study material",
		TeamOnly:    true,
	})

	reg.RegisterCommand("/stats", commands.Command{
		Handler:     a.handleStats,
		Description: "Bot usage statistics",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/adstats", commands.Command{
		Handler:     a.handleAdStats,
		Description: "Ad performance report",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/toggleads", commands.Command{
		Handler:     a.handleToggleAds,
		Description: "Enable or disable ad verification",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/forcesave", commands.Command{
		Handler:     a.handleForceSave,
		Description: "Flush documents to the store now",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/resetuser", commands.Command{
		Handler:     a.handleResetUser,
		Description: "Reset a user's download quota",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/debuguser", commands.Command{
		Handler:     a.handleDebugUser,
		Description: "Dump a user's gating state",
		AdminOnly:   true,
	})
}

func (a *App) registerCallbacks(reg *coretelegram.Registry) {
	_ = reg.RegisterCallback(cbBranch, a.cbSelectBranch)
	_ = reg.RegisterCallback(cbSemester, a.cbSelectSemester)
	_ = reg.RegisterCallback(cbSubject, a.cbSelectSubject)
	_ = reg.RegisterCallback(cbMaterial, a.cbSelectMaterial)

	_ = reg.RegisterCallback(cbFreeConfirm, a.cbConfirmFreeSlot)
	_ = reg.RegisterCallback(cbAdClick, a.cbAdClicked)
	_ = reg.RegisterCallback(cbVerify, a.cbVerifyDownload)

	_ = reg.RegisterCallback(cbMenu, a.cbMainMenu)
	_ = reg.RegisterCallback(cbBrowse, a.cbBrowseMenu)
	_ = reg.RegisterCallback(cbSearch, a.cbSearchPrompt)
	_ = reg.RegisterCallback(cbStatus, a.cbStatusView)
	_ = reg.RegisterCallback(cbHelp, a.cbHelpView)
	_ = reg.RegisterCallback(cbDonate, a.cbDonateView)
}
