package lsp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"eiffel-lsp/internal/command"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/jobs"
	"eiffel-lsp/internal/llm"
	"eiffel-lsp/internal/paths"
	"eiffel-lsp/internal/prompt"
	"eiffel-lsp/internal/repair"
	"eiffel-lsp/internal/testutil"
	"eiffel-lsp/internal/verifier"
	"eiffel-lsp/internal/workspace"
)

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (g *stubGenerator) Complete(context.Context, llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return &llm.Response{Candidates: []string{g.reply}}, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type stubVerifier struct {
	success bool
}

func (v stubVerifier) Verify(context.Context, verifier.Target) (verifier.Result, error) {
	if v.success {
		return verifier.Result{Success: true}, nil
	}
	return verifier.Result{Message: "postcondition violated"}, nil
}

// blockingVerifier fails once, then blocks until the session is cancelled.
type blockingVerifier struct {
	mu      sync.Mutex
	calls   int
	blocked chan struct{}
}

func (v *blockingVerifier) Verify(ctx context.Context, _ verifier.Target) (verifier.Result, error) {
	v.mu.Lock()
	v.calls++
	first := v.calls == 1
	v.mu.Unlock()
	if first {
		return verifier.Result{Message: "postcondition violated"}, nil
	}
	close(v.blocked)
	<-ctx.Done()
	return verifier.Result{}, errors.New(errors.Cancelled, "verifier cancelled", ctx.Err())
}

// recorder captures what the server sends the client. Calls to
// workspace/applyEdit are answered as applied.
type recorder struct {
	mu   sync.Mutex
	sent []message
}

type message struct {
	method string
	params any
}

func (r *recorder) context() *glsp.Context {
	return &glsp.Context{
		Notify: func(method string, params any) {
			r.add(method, params)
		},
		Call: func(method string, params any, result any) {
			r.add(method, params)
			if method == protocol.ServerWorkspaceApplyEdit {
				_ = json.Unmarshal([]byte(`{"applied":true}`), result)
			}
		},
	}
}

func (r *recorder) add(method string, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, message{method: method, params: params})
}

func (r *recorder) params(method string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, m := range r.sent {
		if m.method == method {
			out = append(out, m.params)
		}
	}
	return out
}

// progressKinds lists the kinds of $/progress values in order, with the
// message of the end value.
func (r *recorder) progressKinds(t *testing.T) ([]string, string) {
	t.Helper()
	var kinds []string
	var end string
	for _, p := range r.params(protocol.ServerProgress) {
		switch v := p.(protocol.ProgressParams).Value.(type) {
		case protocol.WorkDoneProgressBegin:
			kinds = append(kinds, v.Kind)
		case protocol.WorkDoneProgressReport:
			kinds = append(kinds, v.Kind)
		case protocol.WorkDoneProgressEnd:
			kinds = append(kinds, v.Kind)
			if v.Message != nil {
				end = *v.Message
			}
		default:
			t.Fatalf("unexpected progress value %T", v)
		}
	}
	return kinds, end
}

type fixture struct {
	s    *Server
	path string
	uri  protocol.DocumentUri
	gen  *stubGenerator
	rec  *recorder
}

func newFixture(t *testing.T, v verifier.Verifier) fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "account.e")
	testutil.WriteFiles(t, dir, map[string]string{"account.e": testutil.Account})

	ws := workspace.New(testutil.LineParser{}, nil, workspace.DefaultOptions())
	if err := ws.LoadFiles(context.Background(), []string{path}); err != nil {
		t.Fatalf("LoadFiles() error = %v", err)
	}

	store, err := jobs.OpenStore(jobs.MemoryPath, nil)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	runner := jobs.NewRunner(store, nil, jobs.RunnerOptions{Workers: 1})

	gen := &stubGenerator{}
	s := NewServer(Deps{
		Workspace: ws,
		Generator: gen,
		Prompts:   prompt.NewBuilder(ws, prompt.DefaultTemplates()),
		Loop:      repair.New(ws, gen, v, testutil.LineParser{}, nil, repair.Options{MaxAttempts: 1}),
		Runner:    runner,
	}, Info{Name: "eiffel-lsp", Version: "test"}, nil)
	if err := runner.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.stop()
		_ = runner.Stop(time.Second)
		_ = store.Close()
	})
	return fixture{
		s:    s,
		path: path,
		uri:  protocol.DocumentUri(paths.FileURI(path)),
		gen:  gen,
		rec:  &recorder{},
	}
}

// handle dispatches a raw request the way the connection does.
func (fx fixture) handle(t *testing.T, method, params string) (any, bool, bool, error) {
	t.Helper()
	ctx := fx.rec.context()
	ctx.Method = method
	ctx.Params = json.RawMessage(params)
	return fx.s.Handler().Handle(ctx)
}

func TestInitialize(t *testing.T) {
	fx := newFixture(t, stubVerifier{success: true})

	if _, _, _, err := fx.handle(t, "workspace/symbol", `{"query":""}`); err == nil {
		t.Error("request before initialize succeeded")
	}

	res, validMethod, validParams, err := fx.handle(t, "initialize",
		`{"clientInfo":{"name":"test"},"capabilities":{"window":{"workDoneProgress":true}}}`)
	if err != nil || !validMethod || !validParams {
		t.Fatalf("initialize = %v, %v, %v", validMethod, validParams, err)
	}
	result, ok := res.(protocol.InitializeResult)
	if !ok {
		t.Fatalf("initialize result is %T", res)
	}
	caps := result.Capabilities
	if caps.HoverProvider == nil || caps.DefinitionProvider == nil || caps.DocumentSymbolProvider == nil ||
		caps.WorkspaceSymbolProvider == nil || caps.CodeActionProvider == nil {
		t.Errorf("capabilities = %+v", caps)
	}
	if caps.ExecuteCommandProvider == nil || strings.Join(caps.ExecuteCommandProvider.Commands, ",") != strings.Join(command.Names(), ",") {
		t.Errorf("executeCommandProvider = %+v", caps.ExecuteCommandProvider)
	}
	if result.ServerInfo == nil || result.ServerInfo.Name != "eiffel-lsp" || result.ServerInfo.Version == nil || *result.ServerInfo.Version != "test" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	if !fx.s.workDoneProgress.Load() {
		t.Error("client work done progress support not recorded")
	}

	if res, _, _, err := fx.handle(t, "workspace/symbol", `{"query":"deposit"}`); err != nil {
		t.Errorf("workspace/symbol error = %v", err)
	} else if syms := res.([]protocol.SymbolInformation); len(syms) != 1 {
		t.Errorf("workspace/symbol = %+v", syms)
	}
	if _, validMethod, _, _ := fx.handle(t, "textDocument/formatting", `{}`); validMethod {
		t.Error("textDocument/formatting should be unknown")
	}
	if _, validMethod, _, err := fx.handle(t, "textDocument/hover", `{"textDocument":{"uri":"file:///a.e"},"position":{"line":0,"character":0}}`); !validMethod || err != nil {
		t.Errorf("hover = %v, %v", validMethod, err)
	}
}

func TestDocumentSymbol(t *testing.T) {
	fx := newFixture(t, stubVerifier{success: true})

	res, err := fx.s.textDocumentDocumentSymbol(fx.rec.context(), &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: fx.uri},
	})
	if err != nil {
		t.Fatal(err)
	}
	syms := res.([]protocol.DocumentSymbol)
	if len(syms) != 1 || syms[0].Name != "ACCOUNT" || syms[0].Kind != protocol.SymbolKindClass {
		t.Fatalf("symbols = %+v", syms)
	}
	var names []string
	for _, ch := range syms[0].Children {
		names = append(names, ch.Name)
	}
	if got := strings.Join(names, ","); got != "balance,deposit,withdraw,audit" {
		t.Errorf("children = %s", got)
	}
	if syms[0].Children[0].Kind != protocol.SymbolKindField || syms[0].Children[1].Kind != protocol.SymbolKindMethod {
		t.Errorf("kinds = %v, %v", syms[0].Children[0].Kind, syms[0].Children[1].Kind)
	}
	if d := syms[0].Children[1].Detail; d == nil || !strings.Contains(*d, "amount") {
		t.Errorf("deposit detail = %v", d)
	}

	res, err = fx.s.textDocumentDocumentSymbol(fx.rec.context(), &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///nowhere/x.e"},
	})
	if err != nil || len(res.([]protocol.DocumentSymbol)) != 0 {
		t.Errorf("unparsed file symbols = %+v, %v", res, err)
	}
}

func TestWorkspaceSymbol(t *testing.T) {
	fx := newFixture(t, stubVerifier{success: true})

	syms, err := fx.s.workspaceSymbol(fx.rec.context(), &protocol.WorkspaceSymbolParams{Query: "DRAW"})
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 1 || syms[0].Name != "withdraw" || syms[0].ContainerName == nil || *syms[0].ContainerName != "ACCOUNT" {
		t.Fatalf("symbols = %+v", syms)
	}
	if syms[0].Location.URI != fx.uri || syms[0].Location.Range.Start.Line != 15 {
		t.Errorf("location = %+v", syms[0].Location)
	}

	syms, _ = fx.s.workspaceSymbol(fx.rec.context(), &protocol.WorkspaceSymbolParams{Query: "acc"})
	if len(syms) != 1 || syms[0].Kind != protocol.SymbolKindClass {
		t.Errorf("class query = %+v", syms)
	}
}

func TestCodeAction(t *testing.T) {
	fx := newFixture(t, stubVerifier{success: true})

	tests := []struct {
		name     string
		uri      protocol.DocumentUri
		line     uint32
		disabled string
	}{
		{"inside routine", fx.uri, 17, ""},
		{"attribute", fx.uri, 4, "cursor not inside a routine"},
		{"unparsed file", "file:///nowhere/x.e", 1, "file not parsed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := protocol.Position{Line: tt.line, Character: 3}
			res, err := fx.s.textDocumentCodeAction(fx.rec.context(), &protocol.CodeActionParams{
				TextDocument: protocol.TextDocumentIdentifier{URI: tt.uri},
				Range:        protocol.Range{Start: pos, End: pos},
			})
			if err != nil {
				t.Fatal(err)
			}
			actions := res.([]protocol.CodeAction)
			if len(actions) != 1 || actions[0].Title != "Add contracts to current routine" {
				t.Fatalf("actions = %+v", actions)
			}
			a := actions[0]
			if tt.disabled != "" {
				if a.Disabled == nil || a.Disabled.Reason != tt.disabled || a.Command != nil {
					t.Errorf("action = %+v, want disabled: %s", a, tt.disabled)
				}
				return
			}
			if a.Disabled != nil || a.Command == nil || a.Command.Command != command.AddSpecificationsName {
				t.Fatalf("action = %+v", a)
			}
			args, ok := a.Command.Arguments[0].(command.Arguments)
			if !ok || args.URI != fx.uri || args.Position == nil || args.Position.Line != 17 {
				t.Errorf("arguments = %+v", a.Command.Arguments)
			}
		})
	}
}

func TestExecuteCommand_AddSpecifications(t *testing.T) {
	fx := newFixture(t, stubVerifier{success: true})
	fx.gen.reply = `{"precondition":[{"tag":"enough","predicate":"amount <= balance"}],"postcondition":[]}`

	res, err := fx.s.workspaceExecuteCommand(fx.rec.context(), &protocol.ExecuteCommandParams{
		Command:   command.AddSpecificationsName,
		Arguments: command.ArgumentsFor(command.Arguments{URI: fx.uri, Feature: "withdraw"}),
	})
	if err != nil {
		t.Fatalf("add_specifications_to_class error = %v", err)
	}
	edits := res.(*protocol.WorkspaceEdit).Changes[fx.uri]
	if len(edits) != 1 || !strings.Contains(edits[0].NewText, "enough: amount <= balance") {
		t.Fatalf("edits = %+v", edits)
	}

	fx.s.wg.Wait()
	applied := fx.rec.params(protocol.ServerWorkspaceApplyEdit)
	if len(applied) != 1 {
		t.Fatalf("applyEdit sent %d times, want 1", len(applied))
	}
	if p := applied[0].(protocol.ApplyWorkspaceEditParams); len(p.Edit.Changes[fx.uri]) != 1 {
		t.Errorf("applyEdit params = %+v", p)
	}
	testutil.AssertFile(t, fx.path, testutil.Account)
}

func TestExecuteCommand_Invalid(t *testing.T) {
	fx := newFixture(t, stubVerifier{success: true})

	_, err := fx.s.workspaceExecuteCommand(fx.rec.context(), &protocol.ExecuteCommandParams{
		Command:   "explode",
		Arguments: command.ArgumentsFor(command.Arguments{URI: fx.uri}),
	})
	if !errors.Is(err, errors.InvalidRequest) || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("unknown command error = %v", err)
	}

	if _, _, _, err := fx.handle(t, "initialize", `{}`); err != nil {
		t.Fatal(err)
	}
	if _, _, validParams, _ := fx.handle(t, "workspace/executeCommand", `{"command": 3}`); validParams {
		t.Error("malformed executeCommand params accepted")
	}

	if err := fx.s.shutdownRequest(fx.rec.context()); err != nil {
		t.Fatal(err)
	}
	_, err = fx.s.workspaceExecuteCommand(fx.rec.context(), &protocol.ExecuteCommandParams{
		Command:   command.FixRoutineName,
		Arguments: command.ArgumentsFor(command.Arguments{URI: fx.uri, Feature: "withdraw"}),
	})
	if !errors.Is(err, errors.InvalidRequest) {
		t.Errorf("command after shutdown error = %v", err)
	}
}

func TestExecuteCommand_FixRoutine(t *testing.T) {
	fx := newFixture(t, stubVerifier{success: true})
	fx.s.workDoneProgress.Store(true)

	res, err := fx.s.workspaceExecuteCommand(fx.rec.context(), &protocol.ExecuteCommandParams{
		Command:   command.FixRoutineName,
		Arguments: command.ArgumentsFor(command.Arguments{URI: fx.uri, Feature: "withdraw"}),
	})
	if err != nil || res != nil {
		t.Fatalf("fix_routine = %v, %v", res, err)
	}
	fx.s.wg.Wait()

	if n := len(fx.rec.params(protocol.ServerWindowWorkDoneProgressCreate)); n != 1 {
		t.Errorf("progress create requests = %d, want 1", n)
	}
	kinds, end := fx.rec.progressKinds(t)
	if len(kinds) < 2 || kinds[0] != "begin" || kinds[len(kinds)-1] != "end" || end != string(repair.StatusOK) {
		t.Errorf("progress = %v, end %q", kinds, end)
	}
	if n := len(fx.rec.params(protocol.ServerWindowShowMessage)); n != 0 {
		t.Errorf("showMessage sent %d times on success", n)
	}
	if n := fx.gen.callCount(); n != 0 {
		t.Errorf("LLM called %d times for a verified routine", n)
	}
}

func TestExecuteCommand_ClassWideGivesUp(t *testing.T) {
	fx := newFixture(t, stubVerifier{})
	fx.gen.reply = "I cannot help with that."

	_, err := fx.s.workspaceExecuteCommand(fx.rec.context(), &protocol.ExecuteCommandParams{
		Command:   command.ClassWideFixesName,
		Arguments: command.ArgumentsFor(command.Arguments{URI: fx.uri}),
	})
	if err != nil {
		t.Fatalf("class_wide_fixes error = %v", err)
	}
	fx.s.wg.Wait()

	msgs := fx.rec.params(protocol.ServerWindowShowMessage)
	if len(msgs) != 1 {
		t.Fatalf("showMessage sent %d times, want 1", len(msgs))
	}
	params := msgs[0].(protocol.ShowMessageParams)
	if params.Type != protocol.MessageTypeWarning || !strings.Contains(params.Message, "ACCOUNT") {
		t.Errorf("showMessage = %+v", params)
	}
	// No client support for work done progress and no token: silent.
	if n := len(fx.rec.params(protocol.ServerProgress)); n != 0 {
		t.Errorf("$/progress sent %d times without a token", n)
	}
	testutil.AssertFile(t, fx.path, testutil.Account)
}

func TestExecuteCommand_CancelThroughProgress(t *testing.T) {
	v := &blockingVerifier{blocked: make(chan struct{})}
	fx := newFixture(t, v)
	fx.gen.reply = "```eiffel\n\twithdraw (amount: INTEGER)\n\t\tdo\n\t\t\tbalance := 0\n\t\tend\n```"

	token := protocol.ProgressToken{Value: "repair-1"}
	_, err := fx.s.workspaceExecuteCommand(fx.rec.context(), &protocol.ExecuteCommandParams{
		WorkDoneProgressParams: protocol.WorkDoneProgressParams{WorkDoneToken: &token},
		Command:                command.FixRoutineName,
		Arguments:              command.ArgumentsFor(command.Arguments{URI: fx.uri, Feature: "withdraw"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-v.blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("repair never reached the second verification")
	}
	if err := fx.s.workDoneProgressCancel(fx.rec.context(), &protocol.WorkDoneProgressCancelParams{Token: token}); err != nil {
		t.Fatal(err)
	}
	fx.s.wg.Wait()

	if n := len(fx.rec.params(protocol.ServerWindowWorkDoneProgressCreate)); n != 0 {
		t.Errorf("created %d progress tokens despite the client token", n)
	}
	if _, end := fx.rec.progressKinds(t); end != string(repair.StatusCancelled) {
		t.Errorf("progress end = %q, want %q", end, repair.StatusCancelled)
	}
	if n := len(fx.rec.params(protocol.ServerWindowShowMessage)); n != 0 {
		t.Errorf("showMessage sent %d times on cancel", n)
	}
	testutil.AssertFile(t, fx.path, testutil.Account)
}
