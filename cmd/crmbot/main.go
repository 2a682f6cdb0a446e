package main

import (
	"log"

	"github.com/fakto/crmbot/core/bootstrap"
	corecmd "github.com/fakto/crmbot/core/cmd"
	"github.com/fakto/crmbot/internal/bot"
	"github.com/fakto/crmbot/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CRMBOT_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg := carrier.(*config.Config)
			if _, err := bootstrap.Run(bootstrap.Options{Config: cfg.CoreConfig()}); err != nil {
				return nil, err
			}
			return bot.New(cfg)
		},
	})
	if err != nil {
		log.Fatalf("crmbot: %v", err)
	}
}
