package server

import (
	"github.com/rs/zerolog"
	"lecture-narrator/config"
)

// RunMigrate creates or updates the lectures table.
func RunMigrate(cfg *config.Config) error {
	ctx := setupLogger(cfg)

	repo, err := newRepository(cfg)
	if err != nil {
		return err
	}
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Msg("migration complete")
	return nil
}
