package cli

import (
	"flag"
	"io"

	"linkscout/internal/config"
)

// CLIArgs are the command-line overrides for the environment-sourced
// configuration. Keep this small — flags exist for the values an operator
// most often changes per run.
type CLIArgs struct {
	// Addr overrides the HTTP listen address.
	Addr string

	// DBPath overrides the history database path.
	DBPath string

	// AppID overrides the application identifier.
	AppID string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by
// passing arbitrary slices. The function is deterministic and does not
// read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("linkscout", flag.ContinueOnError)
	var (
		addr   = fs.String("addr", "", "HTTP listen address (overrides LINKSCOUT_ADDR)")
		dbPath = fs.String("db", "", "History database path (overrides LINKSCOUT_DB_PATH)")
		appID  = fs.String("app-id", "", "Application identifier (overrides LINKSCOUT_APP_ID)")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &CLIArgs{
		Addr:    *addr,
		DBPath:  *dbPath,
		AppID:   *appID,
		RawArgs: args,
	}, nil
}

// Apply overlays the non-empty flags onto cfg and returns the result.
func (a *CLIArgs) Apply(cfg config.Config) config.Config {
	if a == nil {
		return cfg
	}
	if a.Addr != "" {
		cfg.ListenAddr = a.Addr
	}
	if a.DBPath != "" {
		cfg.DBPath = a.DBPath
	}
	if a.AppID != "" {
		cfg.AppID = a.AppID
	}
	return cfg
}
