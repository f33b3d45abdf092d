// Package logx is a small structured-logging facade over zerolog.
//
// It exists so the rest of the codebase can log through one stable API
// while sinks (console, file, telegram) are swapped at runtime via
// Service.Apply without re-plumbing loggers.
package logx
