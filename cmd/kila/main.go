package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"kila/internal/auth"
	"kila/internal/config"
	"kila/internal/pipeline"
	"kila/internal/remote"
	"kila/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "validate":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "path to the invoice JSON file")
		out := fs.String("out", "", "optional path for the full result JSON")
		localOnly := fs.Bool("local-only", false, "skip the external validator")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}

		raw, err := os.ReadFile(*input)
		must(err)

		if *localOnly {
			cfg.RemoteValidatorURL = ""
		}
		svc := pipeline.NewValidationService(db, cfg, remote.NewClient(cfg), zerolog.Nop())
		result, err := svc.Validate(context.Background(), pipeline.ValidateInput{
			Raw:      raw,
			Filename: *input,
		})
		must(err)

		fmt.Printf("validation %s status=%s errors=%d warnings=%d source=%s\n",
			result.ValidationID, result.Status, len(result.Errors), len(result.Warnings), result.Source)
		for _, f := range result.Errors {
			fmt.Printf("  ERROR  [%s] %s: %s\n", f.Section, f.Field, f.Message)
		}
		for _, f := range result.Warnings {
			fmt.Printf("  WARN   [%s] %s: %s\n", f.Section, f.Field, f.Message)
		}

		if strings.TrimSpace(*out) != "" {
			encoded, err := json.MarshalIndent(result, "", "  ")
			must(err)
			must(os.WriteFile(*out, encoded, 0o644))
			fmt.Printf("wrote full result to %s\n", *out)
		}
		if result.Status == "rejected" {
			os.Exit(2)
		}
	case "history:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path, defaults to OUTPUT_DIR/history.xlsx")
		limit := fs.Int("limit", 0, "max rows, 0 = configured history limit")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			*out = filepath.Join(cfg.OutputDir, "history.xlsx")
		}
		if *limit <= 0 {
			*limit = cfg.HistoryLimit
		}

		rows, err := db.ListValidations(nil, *limit)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no stored validations to export"))
		}
		must(pipeline.ExportHistoryToXLSX(rows, *out))
		fmt.Printf("exported %d validations to %s\n", len(rows), *out)
	case "user:create":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		username := fs.String("username", "", "display name")
		email := fs.String("email", "", "login email")
		password := fs.String("password", "", "password, 8 characters minimum")
		_ = fs.Parse(os.Args[2:])
		if *username == "" || *email == "" || len(*password) < 8 {
			must(fmt.Errorf("--username, --email and --password (8+ chars) are required"))
		}

		hash, err := auth.HashPassword(*password)
		must(err)
		user, err := db.InsertUser(*username, strings.ToLower(*email), hash)
		must(err)
		fmt.Printf("created user id=%d email=%s\n", user.ID, user.Email)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: kila <command>")
	fmt.Println("commands:")
	fmt.Println("  validate --input=./invoice.json [--out=./result.json] [--local-only]")
	fmt.Println("  history:export [--out=./out/history.xlsx] [--limit=50]")
	fmt.Println("  user:create --username=... --email=... --password=...")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
