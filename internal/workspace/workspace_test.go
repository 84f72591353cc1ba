package workspace

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eiffel-lsp/internal/ecf"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/testutil"
)

const ledger = `note
	model: account
class LEDGER
feature
	account: ACCOUNT
end
`

func newSystem(t *testing.T) (string, *ecf.System) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"account.e":           testutil.Account,
		"books/ledger.e":      ledger,
		"books/generated/x.e": "class X\nend\n",
		"scratch/broken.e":    "class BROKEN\nfeature\n\tf\n\t\tdo\n",
		"notes.txt":           "not eiffel",
		".eiffelignore":       "scratch/\n",
	})
	sys := &ecf.System{
		Name: "bank",
		Clusters: []ecf.Cluster{{
			Name:      "root",
			Location:  root,
			Recursive: true,
			Excludes:  []*regexp.Regexp{regexp.MustCompile(`/generated$`)},
		}},
	}
	return root, sys
}

func newWorkspace() *Workspace {
	return New(testutil.LineParser{}, nil, DefaultOptions())
}

func TestLoadSystem(t *testing.T) {
	root, sys := newSystem(t)
	ws := newWorkspace()
	if err := ws.LoadSystem(context.Background(), sys); err != nil {
		t.Fatalf("LoadSystem: %v", err)
	}

	classes := ws.SystemClasses()
	if len(classes) != 2 {
		t.Fatalf("len(SystemClasses) = %d, want 2", len(classes))
	}
	if classes[0].Name != "ACCOUNT" || classes[1].Name != "LEDGER" {
		t.Errorf("classes = %s, %s; want sorted ACCOUNT, LEDGER", classes[0].Name, classes[1].Name)
	}

	path, ok := ws.Path("LEDGER")
	if !ok || path != filepath.Join(root, "books", "ledger.e") {
		t.Errorf("Path(LEDGER) = %q, %v", path, ok)
	}
	if cls, ok := ws.Class(path); !ok || cls.Name != "LEDGER" {
		t.Errorf("Class(%q) = %v, %v", path, cls, ok)
	}
	if _, ok := ws.ClassByName("X"); ok {
		t.Error("excluded class X was indexed")
	}
	if ws.System() != sys {
		t.Error("System() does not return the loaded descriptor")
	}
}

func TestLoadFiles_SkipsBrokenFiles(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"account.e": testutil.Account,
		"broken.e":  "class BROKEN\nfeature\n\tf\n\t\tdo\n",
	})
	ws := newWorkspace()
	err := ws.LoadFiles(context.Background(), []string{
		filepath.Join(root, "account.e"),
		filepath.Join(root, "broken.e"),
		filepath.Join(root, "missing.e"),
	})
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if got := len(ws.SystemClasses()); got != 1 {
		t.Errorf("len(SystemClasses) = %d, want 1", got)
	}
}

func TestLoadFiles_Cancelled(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"account.e": testutil.Account})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newWorkspace().LoadFiles(ctx, []string{filepath.Join(root, "account.e")})
	if !errors.Is(err, errors.Cancelled) {
		t.Errorf("LoadFiles(cancelled) = %v, want CANCELLED", err)
	}
}

func TestReload(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "account.e")
	testutil.WriteFiles(t, root, map[string]string{"account.e": testutil.Account})

	ws := newWorkspace()
	if err := ws.LoadFiles(context.Background(), []string{path}); err != nil {
		t.Fatal(err)
	}
	before, _ := ws.Class(path)

	same, err := ws.Reload(context.Background(), path)
	if err != nil {
		t.Fatalf("Reload(unchanged): %v", err)
	}
	if same != before {
		t.Error("Reload of unchanged content re-parsed the file")
	}

	renamed := "class SAVINGS\nfeature\n\trate: REAL\nend\n"
	if err := os.WriteFile(path, []byte(renamed), 0o644); err != nil {
		t.Fatal(err)
	}
	cls, err := ws.Reload(context.Background(), path)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cls.Name != "SAVINGS" {
		t.Errorf("reloaded name = %q", cls.Name)
	}
	if _, ok := ws.Path("ACCOUNT"); ok {
		t.Error("old class name still indexed after rename")
	}

	if err := os.WriteFile(path, []byte("class SAVINGS\nfeature\n\tf\n\t\tdo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Reload(context.Background(), path); !errors.Is(err, errors.ParseError) {
		t.Errorf("Reload(broken) error = %v, want PARSE_ERROR", err)
	}
	if cur, _ := ws.Class(path); cur != cls {
		t.Error("failed reload replaced the previous entry")
	}
}

func TestModelExtended(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"account.e": testutil.Account,
		"ledger.e":  ledger,
	})
	ws := newWorkspace()
	if err := ws.LoadFiles(context.Background(), []string{
		filepath.Join(root, "account.e"), filepath.Join(root, "ledger.e"),
	}); err != nil {
		t.Fatal(err)
	}

	m, err := ws.ModelExtended("LEDGER")
	if err != nil {
		t.Fatalf("ModelExtended: %v", err)
	}
	want := "account: ACCOUNT\n  balance: INTEGER"
	if got := m.Describe(); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}

	if _, err := ws.ModelExtended(model.ClassName("MISSING")); !errors.Is(err, errors.ResolveError) {
		t.Errorf("ModelExtended(MISSING) error = %v, want RESOLVE_ERROR", err)
	}
}

func TestLockFile(t *testing.T) {
	ws := newWorkspace()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := ws.LockFile("/a.e")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			if n > atomic.LoadInt32(&maxInside) {
				atomic.StoreInt32(&maxInside, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}

	// Different files do not contend.
	unlockA := ws.LockFile("/a.e")
	unlockB := ws.LockFile("/b.e")
	unlockB()
	unlockA()
}

func TestBatchDebouncer(t *testing.T) {
	got := make(chan []string, 1)
	b := newBatchDebouncer(20*time.Millisecond, func(paths []string) { got <- paths })

	b.Add("/a.e")
	b.Add("/b.e")
	b.Add("/a.e")
	if n := b.Pending(); n != 2 {
		t.Errorf("Pending() = %d, want 2", n)
	}

	select {
	case paths := <-got:
		if len(paths) != 2 || paths[0] != "/a.e" || paths[1] != "/b.e" {
			t.Errorf("batch = %v", paths)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}

	b.Add("/c.e")
	b.Cancel()
	if n := b.Pending(); n != 0 {
		t.Errorf("Pending() after Cancel = %d", n)
	}
}
