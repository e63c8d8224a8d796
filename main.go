package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"lecture-narrator/cmd"
	"lecture-narrator/config"
)

func main() {
	path := os.Getenv("LECTURE_CONFIG_DIR")
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatal().Err(err).Send()
		}
		path = wd
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to load config")
	}

	root := cmd.Root(cfg)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Send()
	}
}
