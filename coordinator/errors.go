package coordinator

import "errors"

var (
	ErrEngineUnavailable   = errors.New("engine is not available")
	ErrNoSession           = errors.New("no workbook loaded")
	ErrRootNode            = errors.New("root position cannot be evaluated")
	ErrNoActiveLine        = errors.New("no active line")
	ErrUnknownNode         = errors.New("unknown node")
	ErrIllegalTransition   = errors.New("illegal evaluation mode transition")
	ErrMissingCollaborator = errors.New("missing collaborator")
)

const (
	msgEngineUnavailable = "The engine is not available. Check the engine path in the configuration."
	msgNoSession         = "Open a workbook before starting an evaluation."
)
