package smartstep

import (
	"fmt"
	"go/types"
	"sync"

	"golang.org/x/tools/go/packages"
)

// PackagesImporter resolves imports with the go command, reading the
// export data of the imported packages. Loaded packages are kept for the
// lifetime of the importer.
type PackagesImporter struct {
	mu   sync.Mutex
	pkgs map[importKey]*types.Package
}

type importKey struct {
	dir, path string
}

// NewPackagesImporter returns an importer backed by golang.org/x/tools/go/packages.
func NewPackagesImporter() *PackagesImporter {
	return &PackagesImporter{pkgs: map[importKey]*types.Package{}}
}

func (imp *PackagesImporter) Import(path string) (*types.Package, error) {
	return imp.ImportFrom(path, "", 0)
}

// ImportFrom loads path as seen from the module containing dir.
func (imp *PackagesImporter) ImportFrom(path, dir string, _ types.ImportMode) (*types.Package, error) {
	if path == "unsafe" {
		return types.Unsafe, nil
	}
	key := importKey{dir, path}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	if pkg, ok := imp.pkgs[key]; ok {
		return pkg, nil
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes, Dir: dir}
	pkgs, err := packages.Load(cfg, path)
	if err != nil {
		return nil, err
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("import of %q: %d packages loaded", path, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, pkg.Errors[0]
	}
	if pkg.Types == nil || !pkg.Types.Complete() {
		return nil, fmt.Errorf("import of %q: no type information", path)
	}
	imp.pkgs[key] = pkg.Types
	return pkg.Types, nil
}
