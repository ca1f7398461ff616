// Package logger provides component-scoped structured logging.
//
// Each subsystem logs through its own Component so that noisy parts of the
// resolution pipeline can be switched on individually:
//
//	log := logger.WithComponent(logger.ComponentResolver).With(logger.Fields{"request_id": id})
//	log.Debug("attempt started", logger.Fields{"attempt": 1})
//
// Output is text, JSON or colored text. Configuration comes from
// PAHEDL_LOG_* environment variables (see EnvironmentConfig) and file
// outputs are rotated by size and age.
package logger
