package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"projd/internal/build"
	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/service"
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

func (s *Server) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		"openFile":                   s.openFile,
		"closeFile":                  s.closeFile,
		"openExternalProject":        s.openExternalProject,
		"openExternalProjects":       s.openExternalProjects,
		"closeExternalProject":       s.closeExternalProject,
		"getProjectsForFile":         s.getProjectsForFile,
		"buildProjectReferences":     s.buildProjectReferences,
		"findDefinitions":            s.findDefinitions,
		"rename":                     s.rename,
		"syntacticDiagnostics":       s.syntacticDiagnostics,
		"semanticDiagnostics":        s.semanticDiagnostics,
		"compilerOptionsDiagnostics": s.compilerOptionsDiagnostics,
		"projectInfo":                s.projectInfo,
		"drain":                      s.drain,
	}
}

// handleLine decodes and dispatches one request. Notifications are
// executed without a response.
func (s *Server) handleLine(ctx context.Context, line []byte) *Message {
	msg, err := decode(line)
	if err != nil {
		s.logger.Error("Error reading message", "error", err.Error())
		return NewErrorMessage(nil, ParseError, err.Error(), nil)
	}
	if !msg.IsRequest() && !msg.IsNotification() {
		return NewErrorMessage(msg.ID, InvalidRequest, "Invalid message: not a request or notification", nil)
	}

	requestID := uuid.NewString()
	logger := s.logger.With("request", requestID, "method", msg.Method)
	logger.Debug("Handling request", "id", msg.ID)

	h, ok := s.handlers[msg.Method]
	if !ok {
		if msg.IsNotification() {
			return nil
		}
		return NewErrorMessage(msg.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method), nil)
	}

	result, err := h(ctx, msg.Params)
	if msg.IsNotification() {
		if err != nil {
			logger.Error("Notification failed", "error", err.Error())
		}
		return nil
	}
	if err != nil {
		rpcErr := toRPCError(err)
		logger.Error("Request failed", "error", err.Error(), "code", rpcErr.Code)
		return &Message{Jsonrpc: "2.0", ID: msg.ID, Error: rpcErr}
	}
	return NewResultMessage(msg.ID, result)
}

// toRPCError maps argument and lookup failures to invalid params and
// everything else to an internal error.
func toRPCError(err error) *RPCError {
	code := InternalError
	switch errors.CodeOf(err) {
	case errors.InvalidRequest, errors.ProjectNotFound, errors.FileNotOpen:
		code = InvalidParams
	}
	out := &RPCError{Code: code, Message: err.Error()}
	var pe *errors.ProjdError
	if stderrors.As(err, &pe) {
		out.Data = pe
	}
	return out
}

func parseParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New(errors.InvalidRequest, "invalid params", err)
	}
	return nil
}

func requireFile(file string) error {
	if file == "" {
		return errors.NewInvalidRequest("file", "is required")
	}
	return nil
}

type fileParams struct {
	File            string `json:"file"`
	ProjectFileName string `json:"projectFileName,omitempty"`
}

type positionParams struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Offset int    `json:"offset"`
}

func (p positionParams) validate() error {
	if err := requireFile(p.File); err != nil {
		return err
	}
	if p.Line < 1 || p.Offset < 1 {
		return errors.NewInvalidRequest("line", "line and offset are 1-based")
	}
	return nil
}

type externalFile struct {
	FileName string `json:"fileName"`
}

type externalProjectParams struct {
	ProjectFileName string                 `json:"projectFileName"`
	RootFiles       []externalFile         `json:"rootFiles"`
	Options         engine.CompilerOptions `json:"options"`
}

func (p externalProjectParams) descriptor() service.ExternalDescriptor {
	d := service.ExternalDescriptor{ProjectFileName: p.ProjectFileName, Options: p.Options}
	for _, f := range p.RootFiles {
		d.RootFiles = append(d.RootFiles, f.FileName)
	}
	return d
}

func (s *Server) openFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	return s.svc.OpenClientFile(ctx, p.File)
}

func (s *Server) closeFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireFile(p.File); err != nil {
		return nil, err
	}
	return nil, s.svc.CloseClientFile(ctx, p.File)
}

func (s *Server) openExternalProject(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p externalProjectParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, s.svc.OpenExternalProject(ctx, p.descriptor())
}

func (s *Server) openExternalProjects(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Projects []externalProjectParams `json:"projects"`
	}
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	list := make([]service.ExternalDescriptor, 0, len(p.Projects))
	for _, ep := range p.Projects {
		list = append(list, ep.descriptor())
	}
	return nil, s.svc.OpenExternalProjects(ctx, list)
}

func (s *Server) closeExternalProject(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ProjectFileName == "" {
		return nil, errors.NewInvalidRequest("projectFileName", "is required")
	}
	return nil, s.svc.CloseExternalProject(ctx, p.ProjectFileName)
}

func (s *Server) getProjectsForFile(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireFile(p.File); err != nil {
		return nil, err
	}
	return s.svc.GetProjectsForFile(p.File), nil
}

func (s *Server) buildProjectReferences(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		RootConfigPaths []string `json:"rootConfigPaths"`
		Force           bool     `json:"force,omitempty"`
		Verbose         bool     `json:"verbose,omitempty"`
		Dry             bool     `json:"dry,omitempty"`
	}
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	return s.svc.BuildProjectReferences(ctx, p.RootConfigPaths, build.Options{
		Force:   p.Force,
		Verbose: p.Verbose,
		DryRun:  p.Dry,
	})
}

func (s *Server) findDefinitions(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p positionParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return s.svc.FindDefinitions(ctx, p.File, engine.Position{Line: p.Line, Offset: p.Offset})
}

func (s *Server) rename(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p positionParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return s.svc.Rename(ctx, p.File, engine.Position{Line: p.Line, Offset: p.Offset})
}

func (s *Server) syntacticDiagnostics(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireFile(p.File); err != nil {
		return nil, err
	}
	return s.svc.SyntacticDiagnostics(ctx, p.File, p.ProjectFileName)
}

func (s *Server) semanticDiagnostics(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireFile(p.File); err != nil {
		return nil, err
	}
	return s.svc.SemanticDiagnostics(ctx, p.File, p.ProjectFileName)
}

func (s *Server) compilerOptionsDiagnostics(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ProjectFileName == "" {
		return nil, errors.NewInvalidRequest("projectFileName", "is required")
	}
	return s.svc.CompilerOptionsDiagnostics(ctx, p.ProjectFileName)
}

func (s *Server) projectInfo(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p fileParams
	if err := parseParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireFile(p.File); err != nil {
		return nil, err
	}
	return s.svc.ProjectInfo(ctx, p.File)
}

func (s *Server) drain(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return map[string]int{"tasks": s.svc.Drain()}, nil
}
