// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package log is a thin wrapper around logrus, trimmed to the log
// levels and structured-field idiom the core actually exercises: Debug
// for transaction lifecycle, Warn for constraint rejections, and Error
// for anything surfaced back to a caller as a hard failure. Ground
// truth: log/log.go, with the Panic family dropped — nothing in this
// module ever needs to crash the process from inside a log call.
package log

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields.
type Fields = logrus.Fields

// Entry aliases logrus.Entry.
type Entry = logrus.Entry

// Logger is the interface applications and the core itself log through.
type Logger interface {
	Debug(...interface{})
	Debugf(string, ...interface{})

	Info(...interface{})
	Infof(string, ...interface{})

	Warn(...interface{})
	Warnf(string, ...interface{})

	Error(...interface{})
	Errorf(string, ...interface{})

	Fatal(...interface{})
	Fatalf(string, ...interface{})

	WithField(key string, value interface{}) *Entry
	WithFields(Fields) *Entry
	WithContext(context.Context) Logger

	SetLevel(string) error
	SetOutput(io.Writer)
	SetJSONFormatter()
}

type logger struct {
	entry *logrus.Entry
}

// NewLogger creates a new, independently configurable logger.
func NewLogger() Logger {
	l := logrus.New()
	return logger{entry: logrus.NewEntry(l)}
}

func (l logger) WithContext(ctx context.Context) Logger {
	return logger{l.entry.WithContext(ctx)}
}

func (l logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l logger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l logger) WithField(key string, value interface{}) *Entry {
	return l.entry.WithField(key, value)
}

func (l logger) WithFields(fields Fields) *Entry {
	return l.entry.WithFields(fields)
}

func (l logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

func (l logger) SetJSONFormatter() {
	l.entry.Logger.SetFormatter(&logrus.JSONFormatter{})
}

var origLogger = logrus.New()
var globalLogger = logger{entry: logrus.NewEntry(origLogger)}

// Global returns the package-wide default logger.
func Global() Logger {
	return globalLogger
}

// SetLevel sets the global logger's level.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	origLogger.SetLevel(lvl)
	return nil
}

// SetOutput sets the global logger's output.
func SetOutput(w io.Writer) {
	origLogger.SetOutput(w)
}

// SetJSONFormatter sets the global logger's formatter to JSON.
func SetJSONFormatter() {
	origLogger.SetFormatter(&logrus.JSONFormatter{})
}

// Info logs a message at level Info on the global logger.
func Info(args ...interface{}) { globalLogger.entry.Info(args...) }

// TxBegin logs the start of a transaction at Debug — never Info, which
// the core reserves for CLI/service lifecycle events, not per-transaction
// detail.
func TxBegin(txID int64) {
	globalLogger.WithField("tx_id", txID).Debug("transaction begin")
}

// TxCommitted logs a successful commit at Debug.
func TxCommitted(txID int64, tempidCount int) {
	globalLogger.WithFields(Fields{"tx_id": txID, "tempids": tempidCount}).Debug("transaction committed")
}

// TxRolledBack logs an aborted transaction at Debug: rollback is a normal
// outcome of caller-driven cancellation (spec §5), not a warning.
func TxRolledBack(txID int64, err error) {
	globalLogger.WithFields(Fields{"tx_id": txID, "error": err}).Debug("transaction rolled back")
}

// ConstraintRejected logs a schema or upsert constraint violation at
// Warn: these are caller mistakes, not internal faults, but worth
// surfacing above Debug noise.
func ConstraintRejected(code fmt.Stringer, detail interface{}) {
	globalLogger.WithFields(Fields{"code": code.String(), "detail": detail}).Warn("constraint rejected")
}
