package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/paths"
	"eiffel-lsp/internal/testutil"
)

const bankECF = `<?xml version="1.0"?>
<system name="bank">
	<target name="bank">
		<root class="account" feature="make"/>
		<cluster name="src" location="./src" recursive="true"/>
	</target>
</system>`

func newRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"bank.ecf":       bankECF,
		"src/account.e":  testutil.Account,
		"src/readme.txt": "not a class",
	})
	return root
}

func newApp(t *testing.T, opts Options) (*App, *bytes.Buffer) {
	t.Helper()
	var stderr bytes.Buffer
	opts.Parser = testutil.LineParser{}
	opts.Stderr = &stderr
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, &stderr
}

func TestNew_LocatesSystem(t *testing.T) {
	root := newRoot(t)
	a, _ := newApp(t, Options{Root: root})

	if a.ECF != filepath.Join(root, "bank.ecf") {
		t.Errorf("ECF = %q", a.ECF)
	}
	sys, err := a.LoadSystem(context.Background())
	if err != nil {
		t.Fatalf("LoadSystem() error = %v", err)
	}
	if sys.Name != "bank" {
		t.Errorf("system = %q", sys.Name)
	}
	if _, ok := a.Workspace.ClassByName("ACCOUNT"); !ok {
		t.Error("ACCOUNT not indexed")
	}
}

func TestNew_ExplicitConfigFile(t *testing.T) {
	root := newRoot(t)
	a, _ := newApp(t, Options{ConfigFile: filepath.Join(root, "bank.ecf")})
	if a.Root != root {
		t.Errorf("Root = %q, want the ECF directory %q", a.Root, root)
	}
}

func TestNew_Errors(t *testing.T) {
	empty := t.TempDir()
	if _, err := New(Options{Root: empty, Parser: testutil.LineParser{}}); !errors.Is(err, errors.ConfigError) {
		t.Errorf("no ECF: error = %v, want CONFIG_ERROR", err)
	}

	root := newRoot(t)
	testutil.WriteFiles(t, root, map[string]string{".eiffel-lsp/settings.toml": "[repair]\nmaxAttempts = 0\n"})
	if _, err := New(Options{Root: root, Parser: testutil.LineParser{}}); err == nil {
		t.Error("invalid settings: expected an error")
	}
}

func TestNew_LogFile(t *testing.T) {
	root := newRoot(t)
	a, stderr := newApp(t, Options{Root: root, LogFile: true})
	if _, err := a.LoadSystem(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = a.Close()

	data, err := os.ReadFile(paths.ServerLogPath(root))
	if err != nil {
		t.Fatalf("server log: %v", err)
	}
	if !strings.Contains(string(data), "System loaded") {
		t.Errorf("server log = %q", data)
	}
	if !strings.Contains(stderr.String(), "System loaded") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRepair(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("AP_COMMAND", "")

	a, _ := newApp(t, Options{Root: newRoot(t)})
	if _, err := a.Repair(true); err == nil {
		t.Error("Repair(strict) without an API key should fail")
	}

	loop, err := a.Repair(false)
	if err != nil || loop == nil {
		t.Fatalf("Repair(lenient) = %v, %v", loop, err)
	}
	if a.Generators.Len() != 0 {
		t.Errorf("Generators.Len() = %d, want 0", a.Generators.Len())
	}

	t.Setenv("GOOGLE_API_KEY", "k")
	t.Setenv("AP_COMMAND", "/bin/true")
	b, _ := newApp(t, Options{Root: newRoot(t)})
	if _, err := b.Repair(true); err != nil {
		t.Fatalf("Repair(strict) error = %v", err)
	}
	if b.Generators.Len() != 1 || b.Verifier.Command != "/bin/true" {
		t.Errorf("repair stack = %d generators, verifier %q", b.Generators.Len(), b.Verifier.Command)
	}
	if got := b.LLMOptions(); got.APIKey != "k" || got.Model != b.Config.LLM.Model || got.Timeout != b.Config.LLM.Timeout() {
		t.Errorf("LLMOptions() = %+v", got)
	}
}

func TestJobs(t *testing.T) {
	root := newRoot(t)
	testutil.WriteFiles(t, root, map[string]string{".eiffel-lsp/settings.toml": "[jobs]\ndbPath = \"state/jobs.db\"\n"})
	a, _ := newApp(t, Options{Root: root})

	store, runner, err := a.Jobs()
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if store == nil || runner == nil {
		t.Fatal("Jobs() returned nil components")
	}
	if _, err := os.Stat(filepath.Join(root, "state", "jobs.db")); err != nil {
		t.Errorf("job database not created: %v", err)
	}
}

func TestTestParsing(t *testing.T) {
	root := newRoot(t)
	testutil.WriteFiles(t, root, map[string]string{"src/broken.e": "class BROKEN\nfeature\n\tf\n\t\tdo\n"})
	a, _ := newApp(t, Options{Root: root})

	sys, err := a.LoadSystem(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	report, err := a.TestParsing(context.Background(), sys)
	if err != nil {
		t.Fatalf("TestParsing() error = %v", err)
	}
	if report.System != "bank" || report.Parsed != 1 || report.Failed != 1 || len(report.Files) != 2 {
		t.Fatalf("report = %+v", report)
	}
	ok := report.Files[0]
	if ok.Class != "ACCOUNT" || ok.Features != 4 || ok.Error != "" {
		t.Errorf("account entry = %+v", ok)
	}
	if report.Files[1].Error == "" {
		t.Errorf("broken entry = %+v", report.Files[1])
	}

	var text, yml, js bytes.Buffer
	if err := report.Write(&text, FormatText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "bank: 1 parsed, 1 failed") || !strings.Contains(text.String(), "FAIL") {
		t.Errorf("text report = %q", text.String())
	}
	if err := report.Write(&yml, FormatYAML); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(yml.String(), "system: bank") || !strings.Contains(yml.String(), "class: ACCOUNT") {
		t.Errorf("yaml report = %q", yml.String())
	}
	if err := report.Write(&js, FormatJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"parsed": 1`) {
		t.Errorf("json report = %q", js.String())
	}
	if err := report.Write(&js, "xml"); !errors.Is(err, errors.InvalidRequest) {
		t.Errorf("unknown format error = %v", err)
	}
}
