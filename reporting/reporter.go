// Package reporting defines the aggregate sink: the single consumer that
// renders the merged, ordered event stream of all workers. Reporters are
// selected by name through an ordered resolution chain and instantiated at
// most once per run.
package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/testmux/testmux/types"
)

// Reporter consumes the normalized event stream. HandleEvent receives
// lifecycle events in replay order (plus live retry notifications); Done is
// invoked exactly once when the completion barrier finalizes.
type Reporter interface {
	HandleEvent(ev types.LifecycleEvent) error
	Done(failures int) error
}

// Factory constructs a reporter writing to the given output.
type Factory func(out io.Writer) (Reporter, error)

var (
	registryMu sync.RWMutex
	builtins   = make(map[string]Factory)
	registered = make(map[string]Factory)
)

func registerBuiltin(name string, f Factory) {
	builtins[name] = f
}

// Register makes a reporter factory available under the given name, the way
// database/sql drivers register themselves. Registering a duplicate or
// built-in name panics: it is a programming error, not a runtime condition.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("reporting: Register factory is nil")
	}
	if _, ok := builtins[name]; ok {
		panic(fmt.Sprintf("reporting: %q is a built-in reporter", name))
	}
	if _, ok := registered[name]; ok {
		panic(fmt.Sprintf("reporting: reporter %q already registered", name))
	}
	registered[name] = f
}

// Resolve maps a reporter selection to a factory. Candidates are tried in
// order: built-in name, externally registered name, then a template file
// path relative to the working directory. The first match wins; no match is
// a configuration error.
func Resolve(name string) (Factory, error) {
	if name == "" {
		return nil, fmt.Errorf("reporter name is empty")
	}

	registryMu.RLock()
	builtin, isBuiltin := builtins[name]
	external, isRegistered := registered[name]
	registryMu.RUnlock()

	if isBuiltin {
		return builtin, nil
	}
	if isRegistered {
		return external, nil
	}
	if strings.HasSuffix(name, templateExt) {
		if _, err := os.Stat(name); err == nil {
			return templateFactory(name), nil
		}
	}

	return nil, fmt.Errorf("unknown reporter %q (available: %s)", name, strings.Join(Names(), ", "))
}

// Names returns all resolvable reporter names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(builtins)+len(registered))
	for name := range builtins {
		names = append(names, name)
	}
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
