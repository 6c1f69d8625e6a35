package main

import (
	"os"

	"github.com/Saisumanthklv/weapp-starter-template/cmd"
	"github.com/Saisumanthklv/weapp-starter-template/internal/conf"
)

func main() {
	settings := &conf.Settings{}
	if err := cmd.RootCommand(settings).Execute(); err != nil {
		os.Exit(1)
	}
}
