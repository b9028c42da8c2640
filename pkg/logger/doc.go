// Package logger provides the structured logging interface used across
// gphotofetch. It wraps zerolog with a small interface so components can be
// handed a Nop or Test logger in tests.
//
//	logger.Initialize(&cfg.Logging)
//	logger.WithField("bucket", "2023-01").Info("Loaded metadata from cache")
package logger
