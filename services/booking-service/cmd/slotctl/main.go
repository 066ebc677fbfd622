package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/recurrence"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type CLI struct {
	HashPassword HashPasswordCmd `cmd:"" help:"Print a bcrypt hash for ADMIN_PASSWORD_HASH."`
	Migrate      MigrateCmd      `cmd:"" help:"Apply the schema to the configured database."`
	Preview      PreviewCmd      `cmd:"" help:"Print the slots a bulk create would generate."`
}

type HashPasswordCmd struct {
	Password string `arg:"" help:"Plaintext password."`
	Cost     int    `help:"bcrypt cost." default:"12"`
}

func (c *HashPasswordCmd) Run(out io.Writer) error {
	hash, err := auth.HashPassword(c.Password, c.Cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

type MigrateCmd struct {
	Driver     string `help:"postgres or sqlite." enum:"postgres,sqlite" default:"postgres" env:"DATABASE_DRIVER"`
	URL        string `help:"Postgres URL." env:"DATABASE_URL"`
	SQLitePath string `help:"SQLite file." default:"slotbook.db" env:"SQLITE_PATH"`
}

func (c *MigrateCmd) Run(out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var store *storage.Store
	if c.Driver == "sqlite" {
		conn, err := db.OpenSQLite(ctx, c.SQLitePath)
		if err != nil {
			return err
		}
		defer conn.Close()
		store = storage.NewSQLite(conn)
	} else {
		if c.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		pool, err := db.Open(ctx, c.URL, db.PoolOptions{MaxConns: 2, ApplicationName: "slotctl"})
		if err != nil {
			return err
		}
		defer pool.Close()
		store = storage.NewPostgres(pool)
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "schema applied (%s)\n", store.Driver())
	return nil
}

type PreviewCmd struct {
	StartDate string `arg:"" help:"First day, YYYY-MM-DD."`
	EndDate   string `arg:"" help:"Last day, YYYY-MM-DD."`
	From      string `help:"Daily start, HH:MM." default:"10:00"`
	To        string `help:"Daily end, HH:MM." default:"22:00"`
	Minutes   int    `help:"Slot length in minutes; rounded to 5." default:"60"`
	Weekdays  []int  `help:"Weekdays, 0 = Sunday." default:"0,1,2,3,4,5,6"`
	Zone      string `help:"IANA time zone." default:"Asia/Tokyo" env:"BOOKING_TIMEZONE"`
}

func (c *PreviewCmd) Run(out io.Writer) error {
	loc, err := time.LoadLocation(c.Zone)
	if err != nil {
		return err
	}
	candidates, err := recurrence.Expand(recurrence.Params{
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
		StartTime:   c.From,
		EndTime:     c.To,
		SlotMinutes: c.Minutes,
		Weekdays:    c.Weekdays,
		Location:    loc,
	})
	if err != nil {
		return err
	}
	for _, cand := range candidates {
		fmt.Fprintf(out, "%s  %s - %s\n", cand.Label, cand.Start.Format(time.RFC3339), cand.End.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "%d slots\n", len(candidates))
	return nil
}

// newParser builds the command tree; commands print to out.
func newParser(cli *CLI, out io.Writer, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("slotctl"),
		kong.Description("Operator tools for the booking service."),
		kong.BindTo(out, (*io.Writer)(nil)),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	_ = godotenv.Load()
	var cli CLI
	parser, err := newParser(&cli, os.Stdout, kong.UsageOnError())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
