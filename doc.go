// Package varmsg generates JSON messages from snapshots of variables held
// in a shared variable directory.
//
// # Pipelines
//
// Each pipeline definition file describes one message:
//
//	{
//	    "enabled": true,
//	    "prefix": "/varmsg/gps",
//	    "interval": 60,
//	    "trigger": ["/sys/gps/fix"],
//	    "vars": { "tags": "gps", "flags": "volatile" },
//	    "output_type": "mqueue",
//	    "output": "/telemetry/gps"
//	}
//
// The body variables ("vars") and the optional trigger variables are
// resolved once at load time, either from an explicit name list or from a
// query over tags, name substring, flags and instance id. The resolved
// caches are only rebuilt on a rescan request.
//
// A pipeline fires when its interval countdown reaches zero (the scheduler
// ticks once a second) or when any trigger variable changes. Firing renders
// the body variables into one JSON object, values that look like JSON
// arrays or objects unquoted and everything else quoted, and hands it to
// the configured sink: stdout, a file, or a NATS subject.
//
// # Status variables
//
// Every pipeline publishes txcount, errcount, enable and rescan under its
// prefix. Writing "false" to <prefix>/enable freezes the countdown;
// writing anything to <prefix>/rescan rebuilds the caches.
//
// # Layout
//
//	cmd/varmsg           process entry point
//	config               service and pipeline configuration
//	directory            variable directory interface, in-memory backend
//	directory/natskv     JetStream KV backend
//	query, varcache      variable queries and resolved caches
//	message              pipeline definitions and their runtime state
//	render               message body and header rendering
//	output               sink dispatcher and stdout, file, mqueue sinks
//	scheduler            the tick/trigger/control loop
//	api                  HTTP status and control
//	metric, health       Prometheus metrics and health aggregation
//	natsclient           NATS connection management
package varmsg
