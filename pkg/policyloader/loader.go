// Package policyloader reads the policy bundle from the filesystem and
// feeds it into a pkg/policy.Store: one environment document per file
// in the bundle directory (or a single file for a one-environment
// bundle), decoded via pkg/policydoc and assembled into a fresh Tree on
// every (re)load. Grounded on the teacher's policyloader.Loader (watch
// a directory, decode each file, invoke an OnReload hook) adapted from
// "JSON rule bundles, rules merged across all bundles" to "YAML policy
// documents, one environment per bundle, assembled into one Tree".
package policyloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jitaccess/broker/pkg/jitbroker"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/policydoc"
)

// Loader reads the policy bundle at Path (a directory of *.yaml/*.yml
// files, or a single file) and publishes the assembled Tree to Store.
type Loader struct {
	Path  string
	Store *policy.Store
}

// NewLoader returns a Loader reading bundlePath into store.
func NewLoader(bundlePath string, store *policy.Store) *Loader {
	return &Loader{Path: bundlePath, Store: store}
}

// Load reads every document in the bundle, decodes it, assembles a
// fresh Tree, and calls Store.Replace. On any document's parse or
// diagnostic failure, Load returns a *jitbroker.Error (KindParseError)
// and the Store is left unchanged, per spec §9's "never recover from a
// parseError with a partial tree" rule.
func (l *Loader) Load() error {
	files, err := l.bundleFiles()
	if err != nil {
		return fmt.Errorf("policyloader: listing %s: %w", l.Path, err)
	}

	tree := policy.NewTree()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("policyloader: reading %s: %w", path, err)
		}

		env, diags, err := policydoc.Decode(data)
		if err != nil {
			return fmt.Errorf("policyloader: decoding %s: %w", path, err)
		}
		if diags.HasErrors() {
			first := firstError(diags)
			return jitbroker.ParseError(first.Code, path+" "+first.Scope, first.Message)
		}

		if err := tree.AddEnvironment(env); err != nil {
			return jitbroker.ParseError(policydoc.CodeEnvironmentInvalid, path, err.Error())
		}
	}

	l.Store.Replace(tree)
	return nil
}

// bundleFiles returns the ordered list of document paths for Path: the
// path itself if it's a file, or every *.yaml/*.yml direct child if
// it's a directory, sorted for deterministic tree-build order.
func (l *Loader) bundleFiles() ([]string, error) {
	info, err := os.Stat(l.Path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{l.Path}, nil
	}

	entries, err := os.ReadDir(l.Path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		files = append(files, filepath.Join(l.Path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func firstError(diags policydoc.Diagnostics) policydoc.Diagnostic {
	for _, d := range diags {
		if d.Severity == policydoc.Error {
			return d
		}
	}
	return policydoc.Diagnostic{}
}
