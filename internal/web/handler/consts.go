package handler

const (
	// RootPath is the root path of the JSON API.
	RootPath = "/api/"

	// AuthPath is the root path of the sign-in routes.
	AuthPath = RootPath + "auth/"

	// ErrNilFatalLogMsg is used if a required dependency pointer is nil.
	ErrNilFatalLogMsg = "app, registry, callbacks or codec is nil"
)
