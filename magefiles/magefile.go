//go:build mage

// Package main provides build targets for the basket project using Mage.
//
// Usage:
//
//	mage build          Compile basket binary to bin/
//	mage test           Run all tests with the race detector
//	mage cover          Write coverage.out and print the summary
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install basket to GOPATH/bin
//	mage stats          Print Go line and documentation word counts
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName   = "basket"
	binaryDir    = "bin"
	cmdDir       = "./cmd/basket"
	versionVar   = "github.com/mesh-intelligence/basket/internal/cli.Version"
	coverProfile = "coverage.out"
)

// Build compiles the basket binary to bin/. The version comes from
// `git describe` when available.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil && v != "" {
		args = append(args, "-ldflags", fmt.Sprintf("-X %s=%s", versionVar, strings.TrimPrefix(v, "v")))
	}
	return sh.RunV("go", append(args, cmdDir)...)
}

// Test runs all tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Cover writes a coverage profile and prints the per-function summary.
func Cover() error {
	if err := sh.RunV("go", "test", "-coverprofile", coverProfile, "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func", coverProfile)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	if err := os.Remove(coverProfile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return sh.RunV("go", "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output("go", "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Stats prints Go line counts for production and test code, and the word
// count of the Markdown documents at the repository root.
func Stats() error {
	var prod, tests int
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "vendor", ".git", binaryDir, "_examples", "magefiles":
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		n := bytes.Count(data, []byte("\n"))
		if strings.HasSuffix(path, "_test.go") {
			tests += n
		} else {
			prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	docs, err := filepath.Glob("*.md")
	if err != nil {
		return err
	}
	words := 0
	for _, path := range docs {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		words += len(strings.Fields(string(data)))
	}

	fmt.Printf("Go lines (production): %d\n", prod)
	fmt.Printf("Go lines (tests):      %d\n", tests)
	fmt.Printf("Go lines (total):      %d\n", prod+tests)
	fmt.Printf("Markdown words:        %d\n", words)
	return nil
}
