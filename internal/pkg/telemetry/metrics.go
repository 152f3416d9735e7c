package telemetry

// Span names used for instrumentation.
const (
	SpanQueryClusters = "clusters.query"
	SpanRangeScan     = "clusters.range_scan"
	SpanNearby        = "clusters.nearby"

	SpanImportRead    = "import.read"
	SpanImportConvert = "import.convert"
	SpanImportCluster = "import.cluster"
	SpanImportWrite   = "import.write"
	SpanArtifacts     = "import.artifacts"
)
