package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/chronicle/go/internal/dbconfig"
	"github.com/mcdev12/chronicle/go/internal/entries"
)

// Activity mirrors the JSON fixture
type Activity struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func main() {
	path := "go/internal/assets/activities.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON fixture
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var activities []Activity
	if err := json.Unmarshal(data, &activities); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Make sure the tables exist
	if _, err := pool.Exec(ctx, entries.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 4) Insert and count
	var (
		total    = len(activities)
		inserted int
		skipped  int
		errs     int
	)

	for _, a := range activities {
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO activities (id, user_id, name)
            VALUES ($1, $2, $3)
            ON CONFLICT (id) DO NOTHING
        `, a.ID, a.UserID, a.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting activity %s: %v\n", a.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 5) Print summary
	fmt.Printf(
		"Activities seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
