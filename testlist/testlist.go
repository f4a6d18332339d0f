// Package testlist discovers the Test functions of a Go package so that a
// plan group can name a package instead of listing every member check.
package testlist

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

// PackageDir resolves pkgPath to a directory below workDir. Relative paths
// ("./x") are taken as-is; import paths must belong to the module declared in
// workDir/go.mod.
func PackageDir(pkgPath, workDir string) (string, error) {
	if strings.HasPrefix(pkgPath, "./") || pkgPath == "." {
		return filepath.Join(workDir, strings.TrimPrefix(pkgPath, "./")), nil
	}

	goModPath := filepath.Join(workDir, "go.mod")
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}
	modulePath := modfile.ModulePath(content)
	if modulePath == "" {
		return "", fmt.Errorf("could not find module name in %s", goModPath)
	}
	if pkgPath != modulePath && !strings.HasPrefix(pkgPath, modulePath+"/") {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, modulePath)
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(pkgPath, modulePath), "/")
	if rel == "" {
		rel = "."
	}
	return filepath.Join(workDir, rel), nil
}

// Discover returns the top-level Test functions of a package in file and
// declaration order. TestMain and methods are skipped.
func Discover(pkgPath, workDir string) ([]string, error) {
	dir, err := PackageDir(pkgPath, workDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), "_test.go") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	fset := token.NewFileSet()
	var names []string
	for _, name := range files {
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		for _, decl := range f.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok && isTestFunc(fn) {
				names = append(names, fn.Name.Name)
			}
		}
	}
	return names, nil
}

func isTestFunc(fn *ast.FuncDecl) bool {
	if fn.Recv != nil || fn.Name.Name == "TestMain" || !strings.HasPrefix(fn.Name.Name, "Test") {
		return false
	}
	return fn.Type.Params != nil && len(fn.Type.Params.List) == 1
}
