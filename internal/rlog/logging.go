/*
 * Copyright (c) 2026 Jedi06
 */

// Package rlog sets up the process-wide standard logger the way the rest
// of the realm registry expects it: short file/line prefixes, optional
// rotation to a log file.
package rlog

import (
	"log"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the standard logger at logfile (rotated, 20MB/3 backups/14 days)
// when one is configured, otherwise leaves output on stderr.
func Setup(logfile string) {
	log.SetFlags(log.Lshortfile | log.Ltime)

	if logfile == "" {
		return
	}

	log.SetOutput(&lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     14,
	})
}

// SetupCLI configures logging for one-shot CLI-style invocations: no
// rotation, timestamps only when verbose/debug is requested.
func SetupCLI(verbose, debug bool) {
	if verbose || debug {
		log.SetFlags(log.Lshortfile | log.Ltime)
	} else {
		log.SetFlags(0)
	}
}
