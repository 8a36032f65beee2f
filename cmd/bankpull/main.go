/*
bankpull downloads transaction exports from online banking through a
browser the operator logs into and forwards them to the Firefly III Data
Importer.
*/
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jakopako/bankpull/internal/config"
	"github.com/jakopako/bankpull/internal/log"
	"github.com/jakopako/bankpull/internal/schedule"
	"github.com/jakopako/bankpull/internal/server"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/types"
	"github.com/spf13/afero"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`
	Config  string      `short:"c" long:"config" help:"Optional yaml file with the process configuration. Environment variables take precedence." type:"existingfile"`

	Serve ServeCmd `cmd:"" help:"Run the management API and the optional import schedule."`
	Run   RunCmd   `cmd:"" help:"Log in interactively and run a single import."`
}

// loadConfig reads the process configuration and sets up logging.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration: %w", err)
	}
	log.InitializeDefaultLogger(cfg.Log.Format, cfg.Log.Level)
	return cfg, nil
}

type ServeCmd struct{}

func (sc *ServeCmd) Run(c *cli) error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer a.browser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := schedule.New(a.engine, func() settings.ScheduleSettings { return a.store.Get().Schedule })
	if err := sched.Start(ctx); err != nil {
		slog.Error(err.Error())
		return err
	}

	var static afero.Fs
	if cfg.StaticDir != "" {
		static = afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.StaticDir))
	}
	srv := server.New(server.Options{
		Engine:    a.engine,
		Browser:   a.browser,
		Settings:  a.store,
		Hub:       a.hub,
		Static:    static,
		RateLimit: cfg.RateLimit,
	})
	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Port))
}

type RunCmd struct {
	Start string `short:"s" long:"start" help:"First day of the export in the bank's date format." required:""`
	End   string `short:"e" long:"end" help:"Last day of the export in the bank's date format." required:""`
}

func (rc *RunCmd) Run(c *cli) error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer a.browser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// mirror progress messages on the terminal
	events, unsubscribe := a.hub.Subscribe()
	defer unsubscribe()
	go func() {
		for e := range events {
			fmt.Fprintln(os.Stderr, e.Message)
		}
	}()

	if err := a.engine.NavigateToLogin(ctx); err != nil {
		slog.Error(err.Error())
		return err
	}
	fmt.Fprintf(os.Stderr, "Log in on display %s and press Enter to start the import.\n", cfg.Browser.Display)
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return fmt.Errorf("waiting for login: %w", err)
	}

	res, err := a.engine.Run(ctx, types.DateRange{Start: rc.Start, End: rc.End})
	if res != nil {
		if perr := printSummary(os.Stdout, res); perr != nil {
			slog.Warn(fmt.Sprintf("failed to print summary: %v", perr))
		}
	}
	return err
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Name("bankpull"),
		kong.Vars{
			"version": string(cli.Version),
		})

	// must be set before the logger is initialized from the configuration
	log.Debug = cli.Debug

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
