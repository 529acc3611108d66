// Package logging configures the process logger and exposes printf-style helpers.
//
// Messages follow the "component.Func key=value" shape used across the repo.
package logging

import (
	"github.com/rs/zerolog/log"
)

func Debugf(format string, args ...any) {
	log.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	log.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	log.Warn().Msgf(format, args...)
}

func Errf(format string, args ...any) {
	log.Error().Msgf(format, args...)
}

// Logf writes at no level; used for test narration that should survive level filtering.
func Logf(format string, args ...any) {
	log.Log().Msgf(format, args...)
}
