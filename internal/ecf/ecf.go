// Package ecf reads Eiffel Configuration Files: the XML system descriptors
// that list a system's clusters and libraries.
package ecf

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"eiffel-lsp/internal/errors"
)

// maxLibraryDepth bounds library-of-library resolution.
const maxLibraryDepth = 8

// System is the resolved content of one target.
type System struct {
	Name     string
	Path     string
	Target   string
	Root     Root
	Clusters []Cluster
	// Libraries lists the library ECFs that were loaded, by absolute path.
	Libraries []Library
}

// Root is the root class and creation procedure.
type Root struct {
	Class   string
	Feature string
}

// Cluster is a directory of classes.
type Cluster struct {
	Name      string
	Location  string
	Recursive bool
	Excludes  []*regexp.Regexp
	// Library names the library the cluster came from; empty for the
	// system's own clusters.
	Library string
}

// Library is a referenced library ECF.
type Library struct {
	Name     string
	Location string
}

// Excluded reports whether rel, a slash-separated path relative to the
// cluster location, matches one of the cluster's file rules.
func (c Cluster) Excluded(rel string) bool {
	rel = "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
	for _, re := range c.Excludes {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

type xmlSystem struct {
	XMLName xml.Name    `xml:"system"`
	Name    string      `xml:"name,attr"`
	Targets []xmlTarget `xml:"target"`
}

type xmlTarget struct {
	Name       string        `xml:"name,attr"`
	Extends    string        `xml:"extends,attr"`
	Root       *xmlRoot      `xml:"root"`
	FileRules  []xmlFileRule `xml:"file_rule"`
	Clusters   []xmlCluster  `xml:"cluster"`
	Libraries  []xmlLibrary  `xml:"library"`
	Precompile []xmlLibrary  `xml:"precompile"`
}

type xmlRoot struct {
	Class   string `xml:"class,attr"`
	Feature string `xml:"feature,attr"`
}

type xmlFileRule struct {
	Excludes []string `xml:"exclude"`
}

type xmlCluster struct {
	Name      string        `xml:"name,attr"`
	Location  string        `xml:"location,attr"`
	Recursive bool          `xml:"recursive,attr"`
	FileRules []xmlFileRule `xml:"file_rule"`
	Clusters  []xmlCluster  `xml:"cluster"`
}

type xmlLibrary struct {
	Name     string `xml:"name,attr"`
	Location string `xml:"location,attr"`
}

// Load reads the ECF at path and resolves its first target, following
// `extends` and library references.
func Load(path string) (*System, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New(errors.ConfigError, "invalid ECF path", err)
	}
	l := &loader{seen: map[string]bool{}}
	sys, err := l.load(abs, "", 0)
	if err != nil {
		return nil, err
	}
	return sys, nil
}

type loader struct {
	seen map[string]bool
}

func (l *loader) load(path, library string, depth int) (*System, error) {
	doc, err := readSystem(path)
	if err != nil {
		return nil, err
	}
	if len(doc.Targets) == 0 {
		return nil, errors.Newf(errors.ConfigError, "%s: system %q has no target", path, doc.Name)
	}
	l.seen[path] = true

	sys := &System{Name: doc.Name, Path: path}
	target := pickTarget(doc.Targets)
	sys.Target = target.Name
	dir := filepath.Dir(path)

	for _, t := range targetChain(doc.Targets, target) {
		if t.Root != nil && sys.Root.Class == "" {
			sys.Root = Root{Class: strings.ToUpper(t.Root.Class), Feature: t.Root.Feature}
		}
		targetExcludes, err := compileRules(t.FileRules)
		if err != nil {
			return nil, errors.New(errors.ConfigError, path+": invalid file_rule", err)
		}
		for _, c := range t.Clusters {
			clusters, err := flattenCluster(c, dir, dir, targetExcludes)
			if err != nil {
				return nil, errors.New(errors.ConfigError, path+": invalid cluster "+c.Name, err)
			}
			for i := range clusters {
				clusters[i].Library = library
			}
			sys.Clusters = append(sys.Clusters, clusters...)
		}
		for _, lib := range append(append([]xmlLibrary(nil), t.Libraries...), t.Precompile...) {
			loc := Expand(lib.Location, dir, dir)
			if l.seen[loc] || depth >= maxLibraryDepth {
				continue
			}
			sys.Libraries = append(sys.Libraries, Library{Name: lib.Name, Location: loc})
			sub, err := l.load(loc, lib.Name, depth+1)
			if err != nil {
				// A missing library leaves the system usable.
				continue
			}
			sys.Clusters = append(sys.Clusters, sub.Clusters...)
			sys.Libraries = append(sys.Libraries, sub.Libraries...)
		}
	}
	return sys, nil
}

func readSystem(path string) (*xmlSystem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ConfigError, "cannot read ECF "+path, err)
	}
	var doc xmlSystem
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.ConfigError, "malformed ECF "+path, err)
	}
	return &doc, nil
}

// pickTarget returns the last target no other target extends, which is
// the most specific one.
func pickTarget(targets []xmlTarget) xmlTarget {
	extended := map[string]bool{}
	for _, t := range targets {
		if t.Extends != "" {
			extended[t.Extends] = true
		}
	}
	for i := len(targets) - 1; i >= 0; i-- {
		if !extended[targets[i].Name] {
			return targets[i]
		}
	}
	return targets[0]
}

// targetChain returns t followed by the targets it extends.
func targetChain(targets []xmlTarget, t xmlTarget) []xmlTarget {
	byName := map[string]xmlTarget{}
	for _, x := range targets {
		byName[x.Name] = x
	}
	chain := []xmlTarget{t}
	seen := map[string]bool{t.Name: true}
	for t.Extends != "" && !seen[t.Extends] {
		next, ok := byName[t.Extends]
		if !ok {
			break
		}
		seen[next.Name] = true
		chain = append(chain, next)
		t = next
	}
	return chain
}

func flattenCluster(c xmlCluster, ecfDir, parentDir string, inherited []*regexp.Regexp) ([]Cluster, error) {
	excludes, err := compileRules(c.FileRules)
	if err != nil {
		return nil, err
	}
	loc := Expand(c.Location, ecfDir, parentDir)
	cluster := Cluster{
		Name:      c.Name,
		Location:  loc,
		Recursive: c.Recursive,
		Excludes:  append(append([]*regexp.Regexp(nil), inherited...), excludes...),
	}
	out := []Cluster{cluster}
	for _, sub := range c.Clusters {
		nested, err := flattenCluster(sub, ecfDir, loc, cluster.Excludes)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

func compileRules(rules []xmlFileRule) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, r := range rules {
		for _, ex := range r.Excludes {
			re, err := regexp.Compile(strings.TrimSpace(ex))
			if err != nil {
				return nil, err
			}
			out = append(out, re)
		}
	}
	return out, nil
}

var envPattern = regexp.MustCompile(`\$(\{[A-Za-z_][A-Za-z0-9_]*\}|[A-Za-z_][A-Za-z0-9_]*|\|)`)

// Expand resolves an ECF location. `$|` is the parent cluster directory,
// `$VAR` and `${VAR}` are environment variables, and ECF_CONFIG_PATH is the
// directory of the ECF itself. Relative results are joined to parentDir.
func Expand(location, ecfDir, parentDir string) string {
	loc := envPattern.ReplaceAllStringFunc(location, func(m string) string {
		name := strings.Trim(m[1:], "{}")
		switch name {
		case "|":
			return parentDir + "/"
		case "ECF_CONFIG_PATH":
			return ecfDir
		}
		return os.Getenv(name)
	})
	loc = filepath.FromSlash(strings.ReplaceAll(loc, `\`, "/"))
	if !filepath.IsAbs(loc) {
		loc = filepath.Join(parentDir, loc)
	}
	return filepath.Clean(loc)
}
