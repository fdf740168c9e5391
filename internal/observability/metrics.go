package observability

const (
	MUsecaseRequests      = "usecase_requests_total"
	MUsecaseDuration      = "usecase_duration_seconds"
	MHTTPRequests         = "http_requests_total"
	MHTTPRequestDuration  = "http_request_duration_seconds"
	MBroadcastPublished   = "broadcast_events_published_total"
	MBroadcastFailures    = "broadcast_publish_failed_total"
	MTableSideEffectFails = "table_side_effect_failed_total"
)
