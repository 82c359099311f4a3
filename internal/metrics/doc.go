// Package metrics provides build and preview observability hooks.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics cost nothing unless the preview server is started
// with metrics enabled:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	p := pipeline.New(compiler, pipeline.WithRecorder(rec))
//	mux.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
