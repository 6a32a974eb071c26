package errs

const (
	AuthErrorCode       = 1001
	NotFoundErrorCode   = 1004
	BadRequestCode      = 1400
	NotJoinedCode       = 1409
	StoreErrorCode      = 1500
	TransportErrorCode  = 1600
	ServerInternalError = 1999
)

var (
	// ErrAuth rejects Attach; no room is touched.
	ErrAuth = NewCodeError(AuthErrorCode, "auth error")
	// ErrNotFound rejects Join for an unknown workspace.
	ErrNotFound = NewCodeError(NotFoundErrorCode, "workspace not found")
	// ErrStore is a failed Workspace Store call. Room state is unaffected.
	ErrStore = NewCodeError(StoreErrorCode, "store error")
	// ErrTransport is a dropped connection. It triggers Detach and is never sent to a client.
	ErrTransport = NewCodeError(TransportErrorCode, "transport error")

	ErrBadRequest = NewCodeError(BadRequestCode, "bad request")
	ErrNotJoined  = NewCodeError(NotJoinedCode, "session not attached to workspace")
	ErrInternal   = NewCodeError(ServerInternalError, "server internal error")
)
