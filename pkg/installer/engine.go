// pkg/installer/engine.go - install engine contract and source selection by extension.

package installer

import (
	"context"
	"path"
	"strings"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/download"
	"github.com/windowsadmins/cimianshop/pkg/registry"
)

// SourceKind tags a remote package with the engine variant that reads it.
type SourceKind int

const (
	// SourcePackage is a plain package stream (.nsp/.nsz and anything unknown).
	SourcePackage SourceKind = iota
	// SourceContainer is a cartridge image (.xci/.xcz).
	SourceContainer
)

func (k SourceKind) String() string {
	if k == SourceContainer {
		return "container"
	}
	return "package"
}

var containerExts = map[string]struct{}{
	".xci": {},
	".xcz": {},
}

// SourceKindFor picks the engine variant from the item name, then from the URL path.
func SourceKindFor(name, rawURL string) SourceKind {
	if isContainer(name) {
		return SourceContainer
	}
	p, _ := catalog.SplitFragment(rawURL)
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if isContainer(path.Base(p)) {
		return SourceContainer
	}
	return SourcePackage
}

func isContainer(name string) bool {
	_, ok := containerExts[strings.ToLower(path.Ext(strings.TrimSpace(name)))]
	return ok
}

// Source is the remote side of one install.
type Source struct {
	Item catalog.Item
	Kind SourceKind
	Auth download.Credentials
}

// Destination is where installed content goes. Path is only used by
// file-based engines and by the free-space preflight.
type Destination struct {
	Storage registry.Storage
	Path    string
}

// Engine installs a single source. Prepare runs before Begin.
type Engine interface {
	Prepare() error
	Begin() error
}

// EngineFactory builds an engine for one item.
type EngineFactory interface {
	NewEngine(ctx context.Context, dest Destination, ignoreReqVers bool, src Source) (Engine, error)
}

// EngineFactoryFunc adapts a function to EngineFactory.
type EngineFactoryFunc func(ctx context.Context, dest Destination, ignoreReqVers bool, src Source) (Engine, error)

// NewEngine implements EngineFactory.
func (f EngineFactoryFunc) NewEngine(ctx context.Context, dest Destination, ignoreReqVers bool, src Source) (Engine, error) {
	return f(ctx, dest, ignoreReqVers, src)
}

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(title, message string) bool
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(title, message string) bool

// Confirm implements Prompter.
func (f PrompterFunc) Confirm(title, message string) bool { return f(title, message) }

// Feedback is played once when a batch finishes.
type Feedback func(success bool)
