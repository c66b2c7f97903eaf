package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component returns the global logger tagged with a component name. Call it
// after logging.Configure so the configured level and writer apply.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
