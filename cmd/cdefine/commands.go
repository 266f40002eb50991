package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"golang.org/x/net/html"

	"github.com/pthm/cdefine"
	"github.com/pthm/cdefine/lib/dom"
)

// app carries what the root Before hook sets up for the subcommands.
type app struct {
	cfg    Config
	logger *slog.Logger
}

func newApp() *cli.Command {
	a := &app{logger: slog.New(slog.DiscardHandler)}
	return &cli.Command{
		Name:    "cdefine",
		Usage:   "Define template components and render them as declarative shadow DOM",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a YAML config file (key, sensitive, waitUndefined, logLevel)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides the config file",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.renderCmd(),
			a.checkCmd(),
			versionCmd(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return ctx, err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.Root().ErrWriter, &slog.HandlerOptions{Level: level}))
	return ctx, nil
}

func (a *app) renderCmd() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Define every c-define in FILE and render the document with components expanded",
		ArgsUsage: "FILE",
		Description: `Parse FILE, define every c-define element it contains, then instantiate every
element whose tag is a defined name (or x-is src="...") in document order.
Each instance is connected, so its behaviors run, and its render root is
written as a declarative shadow root:

  <greet-card><template shadowrootmode="open"><p>hi</p></template></greet-card>

Examples:
  cdefine render page.html
  cdefine render --keep-defs --out dist/page.html page.html`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "keep-defs",
				Usage: "Keep c-define elements in the output",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write output to this file instead of stdout",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			reg, doc, err := a.define(ctx, cmd)
			if err != nil {
				return err
			}

			insts, err := reg.Upgrade(ctx, doc)
			defer func() {
				for _, inst := range insts {
					inst.Disconnect()
				}
			}()
			if err != nil {
				return fmt.Errorf("failed to render components: %w", err)
			}
			a.logger.Info("rendered components", "instances", len(insts))

			if !cmd.Bool("keep-defs") {
				cdefine.StripDefinitions(doc)
			}

			out := cmd.String("out")
			if out == "" {
				return html.Render(cmd.Root().Writer, doc)
			}
			return renderToFile(out, doc)
		},
	}
}

func (a *app) checkCmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Define every c-define in FILE and list the components",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			reg, _, err := a.define(ctx, cmd)
			if err != nil {
				return err
			}
			return printDefinitions(cmd.Root().Writer, reg)
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "cdefine version %s\n", version)
			return err
		},
	}
}

// define parses the FILE argument and defines its components.
func (a *app) define(ctx context.Context, cmd *cli.Command) (*cdefine.Registry, *html.Node, error) {
	path := cmd.Args().First()
	if path == "" {
		return nil, nil, errors.New("missing FILE argument")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	doc, err := dom.Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}

	reg := cdefine.NewRegistry(a.cfg.options(a.logger))
	if err := reg.DefineDocument(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("failed to define components in %q: %w", path, err)
	}
	a.logger.Debug("defined components", "file", path, "names", reg.Names())
	return reg, doc, nil
}

func printDefinitions(w io.Writer, reg *cdefine.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tOBSERVED\tBEHAVIORS\tFORM")
	for _, name := range reg.Names() {
		def, _ := reg.Lookup(name)
		observed := strings.Join(def.ObservedAttributes(), ",")
		if observed == "" {
			observed = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", name, observed, len(def.Compiled().Behaviors()), def.FormAssociated())
	}
	return tw.Flush()
}

// renderToFile renders doc to path, reporting a failed close as well as a
// failed write.
func renderToFile(path string, doc *html.Node) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %q: %w", path, cerr)
		}
	}()
	if err := html.Render(f, doc); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}
