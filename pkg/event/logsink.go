package event

import "github.com/rs/zerolog"

// LogSink writes each event as a structured log line.
type LogSink struct {
	log zerolog.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink returns a sink logging at info level on log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "events").Logger()}
}

// Emit implements Sink.
func (s *LogSink) Emit(ev Event) {
	e := s.log.Info().
		Str("event", string(ev.Kind)).
		Str("id", ev.ID).
		Time("at", ev.At)
	if ev.Room != 0 {
		e = e.Uint64("room", ev.Room)
	}
	if ev.Session != 0 {
		e = e.Uint64("session", ev.Session)
	}
	if ev.Actor != "" {
		e = e.Str("actor", ev.Actor.Short())
	}
	if ev.Note != "" {
		e = e.Str("note", ev.Note)
	}
	e.Msg("game event")
}
