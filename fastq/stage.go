package fastq

import (
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stage"
)

// Stage wraps e as a sink Stage: one record.Record in per Put, Close
// called once the graph's source is exhausted or the run aborts. This
// is how a stage.Graph drives an Exporter's Export/Close pair as its
// terminal node.
func (e *Exporter) Stage(inputCapacity int) *stage.SinkFunc {
	return stage.NewSink(inputCapacity, func(rec *record.Record) error {
		return e.Export(rec)
	}, e.Close)
}
