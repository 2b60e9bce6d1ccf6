package smartstep

import (
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/go-delve/steptest/pkg/logflags"
)

const defaultIndexSize = 32

// Source enumerates the call candidates at a position.
type Source interface {
	FindCallCandidates(pos Position) ([]Target, error)
}

// Index is a Source backed by go/parser and go/types. Parsed packages are
// cached by the file they were loaded for and re-read when any file of their
// directory changes on disk.
//
// Callers must not mutate the returned Targets' AST nodes.
type Index struct {
	// mu guards the packages in cache: enumeration holds it for reading,
	// refreshing and invalidating hold it for writing.
	mu    sync.RWMutex
	cache *lru.Cache

	importer types.Importer
	log      logflags.Logger
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithImporter sets the importer used to type-check packages. The default
// is a PackagesImporter. Imports the importer fails to resolve leave calls
// into them opaque and conversions to their types indistinguishable from
// calls.
func WithImporter(imp types.Importer) IndexOption {
	return func(ix *Index) {
		ix.importer = imp
	}
}

// WithCacheSize sets the number of packages kept parsed.
func WithCacheSize(n int) IndexOption {
	return func(ix *Index) {
		if n > 0 {
			ix.cache, _ = lru.New(n)
		}
	}
}

// NewIndex returns an empty Index.
func NewIndex(opts ...IndexOption) *Index {
	cache, _ := lru.New(defaultIndexSize)
	ix := &Index{cache: cache, importer: NewPackagesImporter(), log: logflags.ResolverLogger()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Invalidate discards the package cached for file.
func (ix *Index) Invalidate(file string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	ix.cache.Remove(file)
}

// FindCallCandidates returns the call candidates at pos in source order.
func (ix *Index) FindCallCandidates(pos Position) ([]Target, error) {
	pkg, release, err := ix.acquire(pos)
	if err != nil {
		return nil, err
	}
	defer release()
	return pkg.candidates(pos)
}

// acquire returns the up-to-date package containing pos.File with a read
// acquisition on the index held; release must be called once enumeration is
// done.
func (ix *Index) acquire(pos Position) (pkg *packageInfo, release func(), err error) {
	file, err := filepath.Abs(pos.File)
	if err != nil {
		return nil, nil, &NoPositionError{Pos: pos, Err: err}
	}
	dir := filepath.Dir(file)

	ix.mu.Lock()
	pkg, err = ix.refresh(dir, file)
	if err != nil {
		ix.mu.Unlock()
		return nil, nil, &NoPositionError{Pos: pos, Err: err}
	}
	ix.mu.Unlock()

	ix.mu.RLock()
	return pkg, ix.mu.RUnlock, nil
}

// refresh must be called with ix.mu held for writing.
func (ix *Index) refresh(dir, file string) (*packageInfo, error) {
	stamps, err := listPackage(dir, file)
	if err != nil {
		return nil, err
	}
	if v, ok := ix.cache.Get(file); ok {
		pkg := v.(*packageInfo)
		if pkg.upToDate(stamps) {
			return pkg, nil
		}
		ix.log.Debugf("reloading %s", file)
	}
	pkg, err := loadPackage(file, stamps, ix.importer)
	if err != nil {
		return nil, err
	}
	ix.cache.Add(file, pkg)
	return pkg, nil
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// listPackage stats file and the Go files next to it that the default build
// context would compile.
func listPackage(dir, file string) (map[string]fileStamp, error) {
	fi, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", file)
	}
	stamps := map[string]fileStamp{file: {fi.Size(), fi.ModTime()}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(dir, name)
		if path == file {
			continue
		}
		if ok, _ := build.Default.MatchFile(dir, name); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stamps[path] = fileStamp{info.Size(), info.ModTime()}
	}
	return stamps, nil
}

type packageInfo struct {
	dir  string
	fset *token.FileSet
	// file is the file the package was loaded for and src its contents.
	file   string
	src    []byte
	files  map[string]*ast.File
	stamps map[string]fileStamp
	info   *types.Info
	// decls maps every function declared in the package to its
	// declaration.
	decls map[*types.Func]*ast.FuncDecl
}

func declaresMain(f *ast.File) bool {
	for _, decl := range f.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Recv == nil && fd.Name.Name == "main" {
			return true
		}
	}
	return false
}

func (pkg *packageInfo) upToDate(stamps map[string]fileStamp) bool {
	if len(stamps) != len(pkg.stamps) {
		return false
	}
	for path, s := range stamps {
		old, ok := pkg.stamps[path]
		if !ok || old.size != s.size || !old.modTime.Equal(s.modTime) {
			return false
		}
	}
	return true
}

// loadPackage parses and type-checks file together with the other files in
// stamps that declare the same package. When file is a main package declaring
// func main, sibling files that also declare func main belong to other
// programs (a directory of single-file scripts) and are skipped. Type errors
// are ignored: unresolved callees become opaque targets.
func loadPackage(file string, stamps map[string]fileStamp, imp types.Importer) (*packageInfo, error) {
	pkg := &packageInfo{
		dir:    filepath.Dir(file),
		fset:   token.NewFileSet(),
		file:   file,
		files:  map[string]*ast.File{},
		stamps: stamps,
		decls:  map[*types.Func]*ast.FuncDecl{},
	}

	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	pkg.src = src
	target, err := parser.ParseFile(pkg.fset, file, src, parser.ParseComments)
	if target == nil {
		return nil, err
	}
	pkgName := target.Name.Name
	singleProgram := pkgName == "main" && declaresMain(target)
	pkg.files[file] = target
	files := []*ast.File{target}

	paths := make([]string, 0, len(stamps))
	for path := range stamps {
		if path != file {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		f, _ := parser.ParseFile(pkg.fset, path, nil, parser.ParseComments)
		if f == nil || f.Name.Name != pkgName {
			continue
		}
		if singleProgram && declaresMain(f) {
			continue
		}
		pkg.files[path] = f
		files = append(files, f)
	}

	pkg.info = &types.Info{
		Types:      map[ast.Expr]types.TypeAndValue{},
		Defs:       map[*ast.Ident]types.Object{},
		Uses:       map[*ast.Ident]types.Object{},
		Selections: map[*ast.SelectorExpr]*types.Selection{},
	}
	conf := types.Config{
		Importer: imp,
		Error:    func(error) {},
	}
	// The package path is the package name: the debugger reports main as
	// "main" and other packages are matched by suffix.
	conf.Check(pkgName, pkg.fset, files, pkg.info)

	for _, f := range files {
		for _, decl := range f.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			if fn, ok := pkg.info.Defs[fd.Name].(*types.Func); ok {
				pkg.decls[fn] = fd
			}
		}
	}
	return pkg, nil
}

