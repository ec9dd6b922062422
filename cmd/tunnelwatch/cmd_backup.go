package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/HerbHall/tunnelwatch/internal/backup"
	"github.com/HerbHall/tunnelwatch/internal/server"
)

// runBackup implements "tunnelwatch backup".
func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	out := fs.String("out", "", "archive path (default tunnelwatch-<timestamp>.tar.gz)")
	_ = fs.Parse(args)

	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fail("failed to load configuration: %v", err)
	}
	archive := *out
	if archive == "" {
		archive = fmt.Sprintf("tunnelwatch-%s.tar.gz", time.Now().UTC().Format("20060102-150405"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := backup.Backup(ctx, v.GetString("database.path"), v.ConfigFileUsed(), archive); err != nil {
		fail("backup failed: %v", err)
	}
	fmt.Printf("backup written to %s\n", archive)
}

// runRestore implements "tunnelwatch restore <archive>".
func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	force := fs.Bool("force", false, "overwrite existing files")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fail("usage: tunnelwatch restore [-config file] [-force] <archive>")
	}

	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fail("failed to load configuration: %v", err)
	}
	target := filepath.Dir(v.GetString("database.path"))

	m, err := backup.Restore(context.Background(), fs.Arg(0), target, *force)
	if err != nil {
		fail("restore failed: %v", err)
	}
	fmt.Printf("restored backup from %s (version %s) into %s\n",
		m.CreatedAt.Format(time.RFC3339), m.Version, target)
	fmt.Printf("set database.path to %s to use it\n", filepath.Join(target, backup.DatabaseEntry))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
