package storage

// Package storage provides a minimal persistence layer used by the bot.
//
// It currently supports:
//   - Session state blobs keyed by session id (read/write/list)
//   - Multiple backends selected by config (file, sqlite, postgres)
