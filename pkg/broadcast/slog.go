package broadcast

import (
	"context"
	"log/slog"
)

// Slog returns a Sink that writes every event to l at info level. A nil
// logger uses slog.Default().
func Slog(l *slog.Logger) Sink {
	if l == nil {
		l = slog.Default()
	}
	return &slogSink{l: l}
}

type slogSink struct {
	l *slog.Logger
}

func (s *slogSink) Publish(ev *Event) {
	attrs := []slog.Attr{
		slog.String("id", ev.ID),
		slog.String("kind", string(ev.Kind)),
	}
	if ev.Device != "" {
		attrs = append(attrs, slog.String("device", ev.Device))
	}
	switch ev.Kind {
	case KindConnectionState, KindAudioState:
		attrs = append(attrs, slog.String("from", ev.From), slog.String("to", ev.To))
	case KindVendorEvent:
		attrs = append(attrs,
			slog.String("command", ev.Command),
			slog.Int("company_id", ev.CompanyID),
			slog.Int("command_type", ev.CommandType),
			slog.Any("args", ev.Args),
		)
	case KindHFIndicator:
		attrs = append(attrs, slog.Int("indicator_id", ev.IndicatorID), slog.Int("value", ev.IndicatorValue))
	}
	s.l.LogAttrs(context.Background(), slog.LevelInfo, "broadcast: event", attrs...)
}
