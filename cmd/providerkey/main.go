package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"boothvideo/internal/adapter/repo"
	"boothvideo/internal/infra"
	"boothvideo/internal/infra/credentials"
)

func main() {
	var (
		keyFlag   string
		setByFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "ModelArk API key (fallbacks to ARK_API_KEY)")
	flag.StringVar(&setByFlag, "set-by", "", "operator recorded next to the key")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "ARK API key is required via -key or ARK_API_KEY")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "providerkey").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	store := credentials.NewStore(runner)

	// The video_jobs schema also creates integration_tokens.
	if err := repo.NewVideoJobRepository(runner).Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare schema: %v\n", err)
		os.Exit(1)
	}
	if err := store.SetArkAPIKey(ctx, key, strings.TrimSpace(setByFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist ark api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ARK API key stored successfully")
}
