// Command claimdesk runs the claims bot, the sales bot and the admin API in
// one process.
package main

import (
	"log"
	"time"

	"github.com/m3rciful/claimdesk/core/cmd"
	coreconfig "github.com/m3rciful/claimdesk/core/config"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        coreconfig.Load,
		Bootstrap:         bootstrapApp,
		ShutdownTimeout:   15 * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
}
