package tracer

import (
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/mocktracer"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// StartTracer initializes the DataDog tracer
// If enabled is false, it starts a mock tracer instead
func StartTracer(enabled bool) {
	if !enabled {
		mocktracer.Start()
		return
	}
	ddTracer.Start(
		ddTracer.WithServiceName("storage-locator"),
		ddTracer.WithGlobalServiceName(true),
		ddTracer.WithDebugMode(false),
		ddTracer.WithLogStartup(false),
	)
}

// StopTracer flushes and stops whichever tracer is running.
func StopTracer() {
	ddTracer.Stop()
}
