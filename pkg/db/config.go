package db

import "time"

// Config describes the embedded registry database.
type Config struct {
	DSN             string
	Name            string
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	// Instrument attaches the tracing and prometheus plugins.
	Instrument bool
}
