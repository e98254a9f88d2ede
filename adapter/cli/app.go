package cli

import (
	"github.com/gcssync/gcs/internal/app"
)

// App wraps the wired Container the CLI verbs call into. It stays a
// thin indirection over *app.Container (rather than the container
// itself) so commands reach it through the same GetApp/SetApp
// singleton the rest of this package already uses.
type App struct {
	Container *app.Container
}

// NewApp wraps container for use by the CLI commands.
func NewApp(container *app.Container) *App {
	return &App{Container: container}
}

// current is the global CLI application instance.
var current *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	current = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return current
}
