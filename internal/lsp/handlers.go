package lsp

import (
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"eiffel-lsp/internal/command"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/paths"
)

const addContractsTitle = "Add contracts to current routine"

// fail logs a handler error with its kind. glsp reports every handler
// error as InvalidRequest; the kind stays visible in the message.
func (s *Server) fail(method string, err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"method", method, "error", err}
	if e, ok := errors.As(err); ok {
		attrs = append(attrs, "code", e.Code)
		if e.Details != nil {
			attrs = append(attrs, "details", e.Details)
		}
	}
	s.logger.Debug("Request failed", attrs...)
	return err
}

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	client := "unknown"
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name
	}
	if w := params.Capabilities.Window; w != nil && w.WorkDoneProgress != nil {
		s.workDoneProgress.Store(*w.WorkDoneProgress)
	}
	root := ""
	if params.RootURI != nil {
		root = string(*params.RootURI)
	}
	s.logger.Info("Initializing", "client", client, "rootUri", root, "workDoneProgress", s.workDoneProgress.Load())

	caps := s.handler.CreateServerCapabilities()
	caps.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{Commands: command.Names()}
	version := s.info.Version
	return protocol.InitializeResult{
		Capabilities: caps,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    s.info.Name,
			Version: &version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	s.logger.Info("Client initialized")
	return nil
}

func (s *Server) shutdownRequest(ctx *glsp.Context) error {
	s.logger.Info("Client requested shutdown")
	s.shutdown.Store(true)
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// cancelRequest only logs: glsp does not expose request IDs to handlers.
// Repairs are cancelled through their work done progress.
func (s *Server) cancelRequest(ctx *glsp.Context, params *protocol.CancelParams) error {
	s.logger.Debug("Ignoring $/cancelRequest", "id", params.ID.Value)
	return nil
}

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	return nil
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	return nil
}

func (s *Server) workspaceDidChangeConfiguration(ctx *glsp.Context, params *protocol.DidChangeConfigurationParams) error {
	return nil
}

// textDocumentDidSave re-parses the saved file in the background.
func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	path := paths.FromURI(string(params.TextDocument.URI))
	if !strings.HasSuffix(path, ".e") {
		return nil
	}
	s.goBackground(func() {
		if _, err := s.deps.Workspace.Reload(s.ctx, path); err != nil {
			s.logger.Warn("Reload after save failed", "path", path, "error", err)
			return
		}
		s.logger.Debug("Reloaded saved file", "path", path)
	})
	return nil
}

func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	return nil, nil
}

func (s *Server) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	return nil, nil
}

func (s *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	cls, ok := s.deps.Workspace.Class(paths.FromURI(string(params.TextDocument.URI)))
	if !ok {
		return []protocol.DocumentSymbol{}, nil
	}

	sym := protocol.DocumentSymbol{
		Name:           string(cls.Name),
		Kind:           protocol.SymbolKindClass,
		Range:          command.RangeOf(cls.Range),
		SelectionRange: command.RangeOf(cls.Range),
	}
	for i := range cls.Features {
		f := &cls.Features[i]
		detail := f.Signature()
		sym.Children = append(sym.Children, protocol.DocumentSymbol{
			Name:           string(f.Name),
			Detail:         &detail,
			Kind:           featureKind(f),
			Range:          command.RangeOf(f.Range),
			SelectionRange: command.RangeOf(f.Range),
		})
	}
	return []protocol.DocumentSymbol{sym}, nil
}

func featureKind(f *model.Feature) protocol.SymbolKind {
	switch {
	case f.IsFunction():
		return protocol.SymbolKindFunction
	case f.IsRoutine():
		return protocol.SymbolKindMethod
	default:
		return protocol.SymbolKindField
	}
}

// workspaceSymbol matches the query as a case-insensitive substring of
// class and feature names. An empty query lists everything.
func (s *Server) workspaceSymbol(ctx *glsp.Context, params *protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	query := strings.ToLower(params.Query)
	matches := func(name string) bool {
		return strings.Contains(strings.ToLower(name), query)
	}

	out := []protocol.SymbolInformation{}
	for _, cls := range s.deps.Workspace.SystemClasses() {
		uri := protocol.DocumentUri(paths.FileURI(cls.Path))
		if matches(string(cls.Name)) {
			out = append(out, protocol.SymbolInformation{
				Name:     string(cls.Name),
				Kind:     protocol.SymbolKindClass,
				Location: protocol.Location{URI: uri, Range: command.RangeOf(cls.Range)},
			})
		}
		container := string(cls.Name)
		for i := range cls.Features {
			f := &cls.Features[i]
			if !matches(string(f.Name)) {
				continue
			}
			out = append(out, protocol.SymbolInformation{
				Name:          string(f.Name),
				Kind:          featureKind(f),
				Location:      protocol.Location{URI: uri, Range: command.RangeOf(f.Range)},
				ContainerName: &container,
			})
		}
	}
	return out, nil
}

// textDocumentCodeAction offers contract generation for the routine under
// the cursor. The action is always returned; it is disabled with a reason
// when it cannot run.
func (s *Server) textDocumentCodeAction(ctx *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	kind := protocol.CodeActionKindRefactorRewrite
	action := protocol.CodeAction{
		Title: addContractsTitle,
		Kind:  &kind,
	}

	cls, ok := s.deps.Workspace.Class(paths.FromURI(string(params.TextDocument.URI)))
	if !ok {
		action.Disabled = &protocol.CodeActionDisabled{Reason: "file not parsed"}
		return []protocol.CodeAction{action}, nil
	}
	f, ok := cls.FeatureAt(command.PointOf(params.Range.Start))
	if !ok || !f.IsRoutine() {
		action.Disabled = &protocol.CodeActionDisabled{Reason: "cursor not inside a routine"}
		return []protocol.CodeAction{action}, nil
	}

	pos := params.Range.Start
	action.Command = &protocol.Command{
		Title:   addContractsTitle,
		Command: command.AddSpecificationsName,
		Arguments: command.ArgumentsFor(command.Arguments{
			URI:      params.TextDocument.URI,
			Position: &pos,
		}),
	}
	return []protocol.CodeAction{action}, nil
}

// workspaceExecuteCommand dispatches on the command name. The repair
// commands start a job and return at once; the job reports through work
// done progress and a message when it fails.
func (s *Server) workspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	if s.shutdown.Load() {
		return nil, s.fail(params.Command, errors.New(errors.InvalidRequest, "server is shutting down", nil))
	}
	cmd, err := command.Parse(s.deps.Workspace, params.Command, params.Arguments)
	if err != nil {
		return nil, s.fail(params.Command, err)
	}

	switch c := cmd.(type) {
	case command.AddSpecifications:
		edit, err := s.addSpecifications(ctx, c)
		if err != nil {
			return nil, s.fail(params.Command, err)
		}
		return edit, nil
	case command.FixRoutine:
		return nil, s.fail(params.Command, s.startRepair(ctx, params.WorkDoneToken, c.Path, c.Request()))
	case command.ClassWideFixes:
		return nil, s.fail(params.Command, s.startRepair(ctx, params.WorkDoneToken, c.Path, c.Request()))
	default:
		return nil, s.fail(params.Command, errors.Newf(errors.InvalidRequest, "unsupported command %s", cmd.Name()))
	}
}

// addSpecifications returns the contract edit and also asks the client to
// apply it. The client's answer is only logged.
func (s *Server) addSpecifications(ctx *glsp.Context, c command.AddSpecifications) (*protocol.WorkspaceEdit, error) {
	edit, err := c.Edits(s.ctx, s.deps.Generator, s.deps.Prompts, s.logger)
	if err != nil {
		if errors.Is(err, errors.LLMError) {
			ctx.Notify(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
				Type:    protocol.MessageTypeError,
				Message: "Could not generate contracts for " + string(c.Feature.Name) + ": " + err.Error(),
			})
		}
		return nil, err
	}

	label := addContractsTitle
	s.goBackground(func() {
		var res struct {
			Applied       bool   `json:"applied"`
			FailureReason string `json:"failureReason"`
		}
		ctx.Call(protocol.ServerWorkspaceApplyEdit, protocol.ApplyWorkspaceEditParams{
			Label: &label,
			Edit:  *edit,
		}, &res)
		if !res.Applied {
			s.logger.Warn("Client did not apply the contract edit", "reason", res.FailureReason)
		}
	})
	return edit, nil
}
