package broadcast

// Multi returns a Sink that publishes every event to each of sinks, in
// order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

type multi []Sink

func (m multi) Publish(ev *Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}
