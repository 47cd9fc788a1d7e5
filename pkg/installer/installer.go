// pkg/installer/installer.go - sequential, fail-fast install of a selection.

package installer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/clock"
	"github.com/windowsadmins/cimianshop/pkg/config"
	"github.com/windowsadmins/cimianshop/pkg/download"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/metrics"
	"github.com/windowsadmins/cimianshop/pkg/utils"
)

// DisplayNameLength is the longest item name shown in progress text.
const DisplayNameLength = 38

// InstallError reports the item that stopped a batch.
type InstallError struct {
	Item string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("failed to install %s: %v", e.Item, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// Outcome summarizes one Install call.
type Outcome struct {
	Source    string
	Attempted int
	Installed int
	Names     []string
	Failed    string
	Err       error
}

// Success reports whether every item was installed.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Summary is the single line shown when the batch ends.
func (o Outcome) Summary() string {
	switch {
	case o.Err != nil && o.Failed != "":
		return fmt.Sprintf("Failed to install %s!", o.Failed)
	case o.Err != nil:
		return fmt.Sprintf("Install aborted: %v", o.Err)
	case o.Installed == 0:
		return "Nothing to install."
	case o.Installed == 1 && len(o.Names) > 0:
		return fmt.Sprintf("%s installed from %s.", o.Names[0], o.Source)
	default:
		return fmt.Sprintf("%d items installed from %s.", o.Installed, o.Source)
	}
}

// Orchestrator drives an install engine over a selection in order.
type Orchestrator struct {
	Engines       EngineFactory
	Clock         clock.Controller
	OverClock     bool
	IgnoreReqVers bool
	Auth          download.Credentials
	Reporter      utils.Reporter
	Feedback      Feedback
	// FreeSpace returns the bytes available at a path; nil skips the preflight.
	FreeSpace func(path string) (uint64, error)
	Metrics   *metrics.Metrics
}

// NewOrchestrator wires an orchestrator from the configuration.
func NewOrchestrator(cfg *config.Configuration, engines EngineFactory, ctrl clock.Controller, reporter utils.Reporter) *Orchestrator {
	if reporter == nil {
		reporter = utils.NewNoOpReporter()
	}
	return &Orchestrator{
		Engines:       engines,
		Clock:         ctrl,
		OverClock:     cfg.OverClock,
		IgnoreReqVers: cfg.IgnoreReqVers,
		Auth:          download.Credentials{User: cfg.ShopUser, Pass: cfg.ShopPass},
		Reporter:      reporter,
		FreeSpace:     DiskFree,
		Metrics:       metrics.Default(),
	}
}

func (o *Orchestrator) reporter() utils.Reporter {
	if o.Reporter == nil {
		return utils.NewNoOpReporter()
	}
	return o.Reporter
}

func (o *Orchestrator) metrics() *metrics.Metrics {
	if o.Metrics == nil {
		return metrics.Default()
	}
	return o.Metrics
}

// ShortenName truncates name to max runes, ending in "..." when cut.
func ShortenName(name string, max int) string {
	if max <= 3 || utf8.RuneCountInString(name) <= max {
		return name
	}
	runes := []rune(name)
	return string(runes[:max-3]) + "..."
}

// Install installs items in order and stops at the first failure. Items after
// the failing one are never attempted and earlier ones are not rolled back.
// Raised clocks are restored on every path. An empty selection does nothing.
func (o *Orchestrator) Install(ctx context.Context, items []catalog.Item, dest Destination, sourceLabel string) Outcome {
	out := Outcome{Source: sourceLabel}
	if len(items) == 0 {
		return out
	}
	if o.Engines == nil {
		out.Err = errors.New("no install engine configured")
		return out
	}

	rep := o.reporter()
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = ShortenName(it.Name, DisplayNameLength)
	}
	out.Names = names

	if err := o.preflight(items, dest); err != nil {
		logging.Error("Install preflight failed", "destination", dest.Path, "error", err)
		out.Err = err
		rep.Error(err)
		o.skipFrom(0, len(items))
		o.finish(nil, false)
		return out
	}

	guard, err := clock.Acquire(o.Clock, o.OverClock)
	if err != nil {
		logging.Warn("Continuing without clock boost", "error", err)
	}
	defer guard.Release()

	logging.Info("Starting install batch", "items", len(items), "source", sourceLabel, "storage", dest.Storage.String())

	for i, it := range items {
		out.Attempted++
		logging.LogInstallStart(names[i], it.URL, i+1, len(items))
		rep.Message(fmt.Sprintf("Installing %s from %s", names[i], sourceLabel))
		start := time.Now()

		if err := o.installOne(ctx, it, dest, rep); err != nil {
			logging.LogInstallFailed(names[i], err)
			o.metrics().ObserveInstall(metrics.ResultError)
			o.skipFrom(i+1, len(items))

			out.Failed = names[i]
			out.Err = &InstallError{Item: names[i], Err: err}
			rep.Detail(fmt.Sprintf("Failed to install %s", names[i]))
			rep.Percent(0)
			rep.Error(out.Err)
			o.finish(guard, false)
			return out
		}

		o.metrics().ObserveInstall(metrics.ResultOK)
		logging.LogInstallComplete(names[i], time.Since(start))
		out.Installed++
	}

	rep.Detail("Install complete")
	rep.Percent(100)
	rep.Message(out.Summary())
	o.finish(guard, true)
	return out
}

func (o *Orchestrator) installOne(ctx context.Context, it catalog.Item, dest Destination, rep utils.Reporter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !it.Installable() {
		return errors.New("item has no source URL")
	}
	src := Source{Item: it, Kind: SourceKindFor(it.Name, it.URL), Auth: o.Auth}
	logging.Debug("Install request", "url", it.URL, "kind", src.Kind.String())

	engine, err := o.Engines.NewEngine(ctx, dest, o.IgnoreReqVers, src)
	if err != nil {
		return fmt.Errorf("create %s engine: %w", src.Kind, err)
	}

	rep.Detail("Preparing...")
	rep.Percent(0)
	if err := engine.Prepare(); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	if err := engine.Begin(); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	return nil
}

func (o *Orchestrator) skipFrom(start, total int) {
	for i := start; i < total; i++ {
		o.metrics().ObserveInstall(metrics.ResultSkipped)
	}
}

// finish starts the feedback hook, restores clocks and waits for the hook to
// return before the caller moves on.
func (o *Orchestrator) finish(guard *clock.Guard, success bool) {
	var wg sync.WaitGroup
	if o.Feedback != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Feedback(success)
		}()
	}
	if err := guard.Release(); err != nil {
		logging.Warn("Clock restore incomplete", "error", err)
	}
	wg.Wait()
}

// OfferUpdates looks for the newest available update of every selected base
// item that is not selected yet. When there are any, the prompter is asked
// once; on acceptance they are appended to the returned selection.
func OfferUpdates(selected, available []catalog.Item, p Prompter) []catalog.Item {
	if len(selected) == 0 {
		return selected
	}

	latest := make(map[uint64]catalog.Item)
	for _, u := range available {
		ver, ok := u.Version.Get()
		if u.Kind != catalog.KindUpdate || !ok {
			continue
		}
		base, ok := catalog.DeriveBaseID(u)
		if !ok {
			continue
		}
		if cur, seen := latest[base]; !seen || ver > cur.Version.Value {
			latest[base] = u
		}
	}

	chosen := make(map[string]struct{}, len(selected))
	for _, it := range selected {
		chosen[it.URL] = struct{}{}
	}

	var add []catalog.Item
	for _, it := range selected {
		if !catalog.IsBaseItem(it) {
			continue
		}
		base, ok := catalog.DeriveBaseID(it)
		if !ok {
			continue
		}
		upd, ok := latest[base]
		if !ok || !upd.Installable() {
			continue
		}
		if _, dup := chosen[upd.URL]; dup {
			continue
		}
		chosen[upd.URL] = struct{}{}
		add = append(add, upd)
	}

	if len(add) == 0 || p == nil {
		return selected
	}
	if !p.Confirm("Updates available", fmt.Sprintf("Add available updates to the selection? Updates found: %d", len(add))) {
		logging.Debug("Update offer declined", "updates", len(add))
		return selected
	}
	logging.Info("Adding updates to selection", "updates", len(add))
	out := make([]catalog.Item, 0, len(selected)+len(add))
	out = append(out, selected...)
	return append(out, add...)
}
