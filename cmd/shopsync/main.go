// cmd/shopsync/main.go - command-line front end for browsing a shop and installing from it.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/cimianshop/pkg/clock"
	"github.com/windowsadmins/cimianshop/pkg/config"
	"github.com/windowsadmins/cimianshop/pkg/filter"
	"github.com/windowsadmins/cimianshop/pkg/iconcache"
	"github.com/windowsadmins/cimianshop/pkg/installer"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/metrics"
	"github.com/windowsadmins/cimianshop/pkg/progress"
	"github.com/windowsadmins/cimianshop/pkg/registry"
	"github.com/windowsadmins/cimianshop/pkg/selection"
	"github.com/windowsadmins/cimianshop/pkg/shop"
	"github.com/windowsadmins/cimianshop/pkg/version"
)

const sourceLabel = "shop"

var logger *logging.Logger

type options struct {
	configPath  string
	url         string
	user        string
	pass        string
	noCache     bool
	purgeCache  bool
	storage     string
	dest        string
	yes         bool
	all         bool
	clear       bool
	remember    bool
	showMetrics bool
	showVersion bool
	iconMaxAge  time.Duration
	verbosity   int
}

func main() {
	fs := pflag.NewFlagSet(filepath.Base(os.Args[0]), pflag.ExitOnError)
	opts := options{}
	fs.StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "Path to the configuration file (.yaml or .toml).")
	fs.StringVar(&opts.url, "url", "", "Shop URL (overrides the configuration).")
	fs.StringVar(&opts.user, "user", "", "Shop user name.")
	fs.StringVar(&opts.pass, "pass", "", "Shop password.")
	fs.BoolVar(&opts.noCache, "no-cache", false, "Always fetch the catalog from the network.")
	fs.BoolVar(&opts.purgeCache, "purge-cache", false, "Delete the cached catalog before syncing.")
	fs.StringVar(&opts.storage, "storage", "sd", "Install destination storage: sd or builtin.")
	fs.StringVar(&opts.dest, "dest", "", "Directory packages are installed to (defaults to InstallPath).")
	fs.BoolVarP(&opts.yes, "yes", "y", false, "Accept offered updates without asking.")
	fs.BoolVar(&opts.all, "all", false, "Select every visible item.")
	fs.BoolVar(&opts.clear, "clear", false, "Clear the selection.")
	fs.BoolVar(&opts.remember, "remember", false, "Enable remembering the selection between runs.")
	fs.BoolVar(&opts.showMetrics, "metrics", false, "Print metrics in Prometheus text format on exit.")
	fs.BoolVar(&opts.showVersion, "version", false, "Print the version and exit.")
	fs.DurationVar(&opts.iconMaxAge, "icon-max-age", 30*24*time.Hour, "Icons older than this are pruned by the icons command.")
	fs.CountVarP(&opts.verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv)")

	itemFilter := filter.NewItemFilter(nil)
	itemFilter.RegisterFlags(fs)

	fs.Usage = func() { usage(fs) }
	_ = fs.Parse(os.Args[1:])

	if opts.showVersion {
		version.Print()
		return
	}
	if fs.NArg() < 1 {
		usage(fs)
		os.Exit(1)
	}
	command := fs.Arg(0)

	logger = logging.New(opts.verbosity > 0)
	itemFilter.SetLogger(logger)

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, opts)

	if err := logging.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(cfg, opts, itemFilter)
	var runErr error
	switch command {
	case "sync":
		runErr = app.sync(ctx)
	case "list":
		runErr = app.list(ctx)
	case "select":
		runErr = app.selectItems(ctx)
	case "install":
		runErr = app.install(ctx)
	case "motd":
		runErr = app.motd(ctx)
	case "icons":
		runErr = app.icons(ctx)
	default:
		usage(fs)
		os.Exit(1)
	}

	if opts.showMetrics {
		if err := metrics.Default().WriteText(os.Stdout); err != nil {
			logger.Warning("Failed to write metrics: %v", err)
		}
	}
	if runErr != nil {
		logger.Error("%v", runErr)
		logging.CloseLogger()
		os.Exit(1)
	}
}

func usage(fs *pflag.FlagSet) {
	name := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "%s %s\n\n", version.AppName(), version.Version().Version)
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command>\n", name)
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  sync     Fetch the catalog and show its sections\n")
	fmt.Fprintf(os.Stderr, "  list     List items (use --section, --search, --item)\n")
	fmt.Fprintf(os.Stderr, "  select   Toggle matching items in the remembered selection\n")
	fmt.Fprintf(os.Stderr, "  install  Install the selection\n")
	fmt.Fprintf(os.Stderr, "  motd     Print the shop's message of the day\n")
	fmt.Fprintf(os.Stderr, "  icons    Download icons of listed items and prune old ones\n")
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	fs.PrintDefaults()
}

func applyOverrides(cfg *config.Configuration, opts options) {
	if opts.url != "" {
		cfg.ShopURL = opts.url
	}
	if opts.user != "" {
		cfg.ShopUser = opts.user
	}
	if opts.pass != "" {
		cfg.ShopPass = opts.pass
	}
	if opts.remember {
		cfg.RememberSelection = true
	}
	if opts.verbosity > 0 {
		cfg.LogLevel = "DEBUG"
		cfg.Debug = true
	}
	if opts.dest != "" {
		cfg.InstallPath = opts.dest
	}
}

type app struct {
	cfg    *config.Configuration
	opts   options
	filter *filter.ItemFilter
	client *shop.Client
	reg    *registry.SQLite
}

func newApp(cfg *config.Configuration, opts options, f *filter.ItemFilter) *app {
	return &app{
		cfg:    cfg,
		opts:   opts,
		filter: f,
		client: shop.NewClient(cfg, metrics.Default()),
		reg:    registry.NewSQLite(cfg.RegistryPath),
	}
}

// load synchronizes and prepares the catalog for display.
func (a *app) load(ctx context.Context) (shop.Prepared, error) {
	if a.opts.purgeCache {
		a.client.PurgeCache()
	}
	cat, err := a.client.Sync(ctx, !a.opts.noCache)
	if err != nil {
		return shop.Prepared{}, fmt.Errorf("failed to load shop: %w", err)
	}
	if cat.Empty() {
		return shop.Prepared{}, fmt.Errorf("the shop is empty")
	}
	return shop.Prepare(cat, a.reg, a.reg), nil
}

func (a *app) sync(ctx context.Context) error {
	p, err := a.load(ctx)
	if err != nil {
		return err
	}
	if motd := a.client.MOTD(ctx); motd != "" {
		logger.Info("%s", motd)
	}
	for _, s := range p.Catalog.Sections {
		logger.Printf("%-12s %-24s %d item(s)", s.ID, s.Title, len(s.Items))
	}
	logger.Success("Catalog loaded: %d section(s), %d item(s).", len(p.Catalog.Sections), p.Catalog.ItemCount())
	return nil
}

func (a *app) list(ctx context.Context) error {
	p, err := a.load(ctx)
	if err != nil {
		return err
	}
	sel := selection.RestoreFromConfig(a.cfg, p.Catalog)
	for _, it := range a.filter.Apply(p.Catalog) {
		mark := " "
		if sel.Contains(it.URL) {
			mark = "x"
		}
		logger.Printf("[%s] %-56s %10s", mark, installer.ShortenName(it.Name, 56), progress.FormatBytes(int64(it.Size)))
		if a.opts.verbosity > 1 {
			logger.Debug("    %s", filter.Describe(a.reg, a.reg, it))
		}
	}
	return nil
}

func (a *app) selectItems(ctx context.Context) error {
	p, err := a.load(ctx)
	if err != nil {
		return err
	}
	sel := selection.RestoreFromConfig(a.cfg, p.Catalog)

	switch {
	case a.opts.clear:
		sel.Clear()
	case a.opts.all:
		added := sel.SelectAll(a.filter.Apply(p.Catalog))
		logger.Info("Selected %d more item(s).", added)
	case a.filter.HasFilter():
		for _, it := range a.filter.Apply(p.Catalog) {
			if sel.Toggle(it) {
				logger.Info("+ %s", it.Name)
			} else {
				logger.Info("- %s", it.Name)
			}
		}
	}

	if !a.cfg.RememberSelection {
		logger.Warning("Selection is not remembered; pass --remember to keep it between runs.")
	}
	if err := sel.Persist(a.cfg); err != nil {
		return err
	}
	logger.Success("%d item(s) selected.", sel.Len())
	return nil
}

func (a *app) install(ctx context.Context) error {
	p, err := a.load(ctx)
	if err != nil {
		return err
	}
	sel := selection.RestoreFromConfig(a.cfg, p.Catalog)
	if a.opts.all || a.filter.HasFilter() {
		sel.SelectAll(a.filter.Apply(p.Catalog))
	}
	if sel.Len() == 0 {
		logger.Warning("Nothing selected.")
		return nil
	}

	items := installer.OfferUpdates(sel.Items(), p.AvailableUpdates, a.prompter())
	sel.Append(items...)
	if err := sel.Persist(a.cfg); err != nil {
		logger.Warning("%v", err)
	}

	reporter := progress.NewConsoleReporter(os.Stdout)
	engines := &installer.FileEngines{Fetcher: a.client.Fetcher(), Registry: a.reg, Reporter: reporter}
	orch := installer.NewOrchestrator(a.cfg, engines, clock.NewMemoryController(nil), reporter)
	if a.cfg.SoundEnabled {
		orch.Feedback = func(success bool) {
			fmt.Fprint(os.Stdout, "\a")
		}
	}

	dest := installer.Destination{Storage: a.destinationStorage(), Path: a.cfg.InstallPath}
	out := orch.Install(ctx, sel.Items(), dest, sourceLabel)
	if out.Err != nil {
		return fmt.Errorf("%s\n%w", out.Summary(), out.Err)
	}
	logger.Success("%s", out.Summary())

	sel.Clear()
	return sel.Persist(a.cfg)
}

func (a *app) destinationStorage() registry.Storage {
	if strings.EqualFold(a.opts.storage, "builtin") || strings.EqualFold(a.opts.storage, "nand") {
		return registry.StorageBuiltIn
	}
	return registry.StorageSD
}

func (a *app) prompter() installer.Prompter {
	if a.opts.yes {
		return installer.PrompterFunc(func(string, string) bool { return true })
	}
	return installer.PrompterFunc(func(title, message string) bool {
		fmt.Fprintf(os.Stdout, "%s\n%s [y/N]: ", title, message)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	})
}

func (a *app) motd(ctx context.Context) error {
	msg := a.client.MOTD(ctx)
	if msg == "" {
		logger.Info("No message of the day.")
		return nil
	}
	logger.Printf("%s", msg)
	return nil
}

func (a *app) icons(ctx context.Context) error {
	p, err := a.load(ctx)
	if err != nil {
		return err
	}
	icons := iconcache.New(a.cfg.IconCachePath, a.client.Fetcher())
	fetched := 0
	for _, it := range a.filter.Apply(p.Catalog) {
		path, err := icons.Fetch(ctx, it, a.client.Creds)
		if err != nil {
			logger.Debug("No icon for %s: %v", it.Name, err)
			continue
		}
		fetched++
		logger.Debug("%s -> %s", it.Name, path)
	}
	stats, err := icons.Prune(a.opts.iconMaxAge)
	if err != nil {
		return err
	}
	logger.Success("%d icon(s) cached, %d of %d pruned.", fetched, stats.Removed, stats.Scanned)
	return nil
}
