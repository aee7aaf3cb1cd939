package main

import (
	"log"

	"github.com/quicknotes/studybot/core/cmd"
	"github.com/quicknotes/studybot/internal/bot"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config/config.yaml",
		LoadConfig:        bot.LoadConfig,
		Bootstrap:         bot.Bootstrap,
	})
	if err != nil {
		log.Fatalf("studybot: %v", err)
	}
}
