// Command migrate applies or rolls back the PostgreSQL schema.
//
//	migrate up
//	migrate down
//	migrate to <version>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/logger"
)

func main() {
	dir := flag.String("dir", "", "migrations directory (default MIGRATIONS_DIR)")
	flag.Parse()

	cfg := config.Load()
	log := logger.NewLogger("migrate", logger.ParseLevel(cfg.Log.Level))
	defer log.Close()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] up|down|to <version>")
		os.Exit(2)
	}
	if *dir == "" {
		*dir = cfg.Database.MigrationsDir
	}

	db, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	defer db.Close()

	runner := migrations.NewRunner(db.DB, migrations.Options{MigrationsDir: *dir}, log)
	defer runner.Close()

	switch flag.Arg(0) {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "to":
		var version uint64
		version, err = strconv.ParseUint(flag.Arg(1), 10, 32)
		if err == nil {
			err = runner.To(uint(version))
		}
	default:
		err = fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("%s complete", flag.Arg(0)))
}
