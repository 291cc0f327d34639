package tracking

import "github.com/prometheus/client_golang/prometheus"

func Failures(event string) prometheus.Counter {
	return failuresTotal.WithLabelValues(event)
}

func Dropped(event string) prometheus.Counter {
	return droppedTotal.WithLabelValues(event)
}
