// Command seed fills a database with a test account and one listing so the
// API has something to return on a fresh checkout. Running it twice is
// harmless: the user is upserted by email and the listing is only created
// when the user has no listing with the same title yet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bullaburg/game-saviour/internal/auth"
	"github.com/bullaburg/game-saviour/internal/config"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository/sqlite"
	"github.com/bullaburg/game-saviour/internal/service"
)

const (
	seedEmail = "testuser@example.com"
	seedName  = "Test User"
	seedTitle = "Looking for a Valorant duo"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := cfg.Log.NewLogger(os.Stdout)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DB.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	user := &model.User{Email: seedEmail, Name: seedName}
	if err := db.Upsert(ctx, user); err != nil {
		return err
	}
	logger.Info("seeded user", slog.String("id", user.ID), slog.String("email", user.Email))

	listings := service.NewListingService(db, db, logger)
	p := auth.Principal{UserID: user.ID, Email: user.Email}

	mine, err := listings.ListMine(ctx, p, service.ListingQuery{Take: service.MaxPageSize})
	if err != nil {
		return err
	}
	for _, l := range mine.Listings {
		if l.Title == seedTitle {
			logger.Info("listing already seeded", slog.String("id", l.ID))
			return nil
		}
	}

	price := 12.5
	created, err := listings.Create(ctx, p, service.CreateListingInput{
		Game:         "Valorant",
		Title:        seedTitle,
		Description:  "Diamond player looking for a chill duo partner for ranked.",
		PricePerHour: &price,
		Availability: "Weekday evenings",
		Tags:         []string{"ranked", "chill"},
	})
	if err != nil {
		return err
	}
	logger.Info("seeded listing", slog.String("id", created.ID), slog.String("title", created.Title))
	return nil
}
