// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package logrusadapter implements support/logging.L on top of
// github.com/sirupsen/logrus, for callers who want dataset/pcapfile
// diagnostics surfaced somewhere other than /dev/null.
package logrusadapter

import (
	"github.com/sirupsen/logrus"

	"github.com/Zoranner/pcapfile-io/support/logging"
)

// Adapter wraps a *logrus.Entry to satisfy logging.L.
type Adapter struct {
	entry *logrus.Entry
}

var _ logging.L = (*Adapter)(nil)

// New wraps l's entry point as a logging.L.
func New(l *logrus.Logger) *Adapter {
	return &Adapter{entry: logrus.NewEntry(l)}
}

// WithField returns a copy of a bound to an additional structured field,
// useful for tagging log lines with e.g. the dataset directory or the
// active file name.
func (a *Adapter) WithField(key string, value interface{}) *Adapter {
	return &Adapter{entry: a.entry.WithField(key, value)}
}

func (a *Adapter) Error(args ...interface{}) { a.entry.Error(args...) }
func (a *Adapter) Warn(args ...interface{})  { a.entry.Warn(args...) }
func (a *Adapter) Info(args ...interface{})  { a.entry.Info(args...) }
func (a *Adapter) Debug(args ...interface{}) { a.entry.Debug(args...) }

func (a *Adapter) Errorf(fmt string, args ...interface{}) { a.entry.Errorf(fmt, args...) }
func (a *Adapter) Warnf(fmt string, args ...interface{})  { a.entry.Warnf(fmt, args...) }
func (a *Adapter) Infof(fmt string, args ...interface{})  { a.entry.Infof(fmt, args...) }
func (a *Adapter) Debugf(fmt string, args ...interface{}) { a.entry.Debugf(fmt, args...) }
