package audit

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Sink receives authorization decisions. Implementations may block; callers dispatch
// records in the background so a slow or failing sink never affects the decision.
type Sink interface {
	Record(ctx context.Context, rec *Record) error
	Close() error
}

// NoOp discards records
type NoOp struct{}

func (NoOp) Record(context.Context, *Record) error { return nil }
func (NoOp) Close() error                          { return nil }

// LogrusSink writes each record as a structured log entry
type LogrusSink struct {
	logger *logrus.Logger
	// DenyOnly skips allow decisions
	DenyOnly bool
}

// NewLogrusSink creates a sink writing to logger
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	return &LogrusSink{logger: logger}
}

// Record logs rec at info level for allows and warn level for denials
func (s *LogrusSink) Record(_ context.Context, rec *Record) error {
	if s.DenyOnly && rec.Allowed() {
		return nil
	}
	entry := s.logger.WithFields(logrus.Fields{
		"audit_id":   rec.ID,
		"decision":   string(rec.Outcome),
		"user_id":    rec.UserID,
		"service":    rec.Service,
		"action":     rec.Action,
		"object_ref": rec.ObjectRef,
		"policy":     rec.Policy,
		"reason":     rec.Reason,
	})
	if rec.RequestID != "" {
		entry = entry.WithField("request_id", rec.RequestID)
	}
	if rec.Error != "" {
		entry = entry.WithField("error", rec.Error)
	}
	if rec.Allowed() {
		entry.Info("authorization decision")
	} else {
		entry.Warn("authorization decision")
	}
	return nil
}

func (s *LogrusSink) Close() error { return nil }

// MultiSink fans records out to several sinks. Every sink receives the record even if
// an earlier one fails; the errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Record(ctx context.Context, rec *Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
