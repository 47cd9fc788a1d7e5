// pkg/installer/files.go - file-backed engine: downloads packages into a
// destination directory and records them in the local registry.

package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/download"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/progress"
	"github.com/windowsadmins/cimianshop/pkg/registry"
	"github.com/windowsadmins/cimianshop/pkg/utils"
)

// ErrChecksumMismatch is returned when a downloaded package does not match its checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// FileEngines builds engines that store each package under Destination.Path.
type FileEngines struct {
	Fetcher  *download.Fetcher
	Registry *registry.SQLite // optional
	Reporter utils.Reporter
}

// NewEngine implements EngineFactory.
func (f *FileEngines) NewEngine(ctx context.Context, dest Destination, ignoreReqVers bool, src Source) (Engine, error) {
	if f.Fetcher == nil {
		return nil, errors.New("no fetcher configured")
	}
	if dest.Path == "" {
		return nil, errors.New("destination path is empty")
	}
	rep := f.Reporter
	if rep == nil {
		rep = utils.NewNoOpReporter()
	}
	return &fileEngine{
		ctx:           ctx,
		factory:       f,
		dest:          dest,
		src:           src,
		ignoreReqVers: ignoreReqVers,
		reporter:      rep,
	}, nil
}

type fileEngine struct {
	ctx           context.Context
	factory       *FileEngines
	dest          Destination
	src           Source
	ignoreReqVers bool
	reporter      utils.Reporter
	target        string
}

// FileName picks the on-disk name for an item: the URL's last segment, else
// the item name with path separators replaced.
func FileName(it catalog.Item) string {
	path, _ := catalog.SplitFragment(it.URL)
	name := catalog.NameFromURL(path)
	if name == "" {
		name = it.Name
	}
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "package.bin"
	}
	return name
}

func (e *fileEngine) Prepare() error {
	if err := os.MkdirAll(e.dest.Path, 0755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	e.target = filepath.Join(e.dest.Path, FileName(e.src.Item))
	logging.Debug("Prepared file install",
		"target", e.target,
		"kind", e.src.Kind.String(),
		"storage", e.dest.Storage.String(),
		"ignore_required_version", e.ignoreReqVers,
	)
	return nil
}

func (e *fileEngine) Begin() error {
	if e.target == "" {
		return errors.New("engine not prepared")
	}
	onProgress := func(done, total int64) {
		if total > 0 {
			e.reporter.Percent(progress.Percent(done, total))
		} else {
			e.reporter.Percent(-1)
		}
	}
	if err := e.factory.Fetcher.DownloadFile(e.ctx, e.src.Item.URL, e.target, e.src.Auth, onProgress); err != nil {
		return err
	}
	if err := e.verify(); err != nil {
		return err
	}
	e.reporter.Percent(100)
	return e.record()
}

// verify checks the downloaded package against the published checksum and
// removes it on mismatch.
func (e *fileEngine) verify() error {
	want := e.src.Item.SHA256
	if want == "" {
		return nil
	}
	if utils.Verify(e.target, want) {
		logging.Debug("Package checksum verified", "target", e.target)
		return nil
	}
	got, _ := utils.FileSHA256(e.target)
	os.Remove(e.target)
	return fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, filepath.Base(e.target), want, got)
}

// record adds the installed item to the registry when its identifiers are known.
func (e *fileEngine) record() error {
	reg := e.factory.Registry
	it := e.src.Item
	if reg == nil || it.Kind == catalog.KindUnknown {
		return nil
	}
	id, ok := ownID(it)
	if !ok {
		logging.Debug("Not recording item without identifier", "item", it.Name)
		return nil
	}
	base := id
	if it.Kind != catalog.KindBase {
		if base, ok = catalog.DeriveBaseID(it); !ok {
			return nil
		}
	}
	rec := registry.Record{ID: id, BaseID: base, Kind: it.Kind, Version: it.Version.Value}
	if err := reg.AddTitle(rec, it.Name); err != nil {
		if errors.Is(err, registry.ErrKindConflict) {
			logging.Warn("Not recording item over a different title", "item", it.Name, "error", err)
			return nil
		}
		return fmt.Errorf("record installed title: %w", err)
	}
	if it.Kind != catalog.KindBase {
		key := registry.MetaKey{ID: id, Kind: it.Kind, Version: it.Version.Value}
		if err := reg.AddMetaKey(e.dest.Storage, key); err != nil {
			return fmt.Errorf("record content meta: %w", err)
		}
	}
	return nil
}

// ownID returns the identifier of the item itself (not its base). The
// alternate hex id names the item directly; a numeric id on an update or
// add-on may be its base's, so it is only trusted for bases or when no
// alternate id is published.
func ownID(it catalog.Item) (uint64, bool) {
	hex := catalog.NormalizeHexID(it.AppID)
	if len(hex) >= 16 {
		id, err := strconv.ParseUint(hex[len(hex)-16:], 16, 64)
		if err == nil {
			return id, true
		}
	}
	if id, ok := it.TitleID.Get(); ok && (it.Kind == catalog.KindBase || it.AppID == "") {
		return id, true
	}
	return 0, false
}
