// Package api exposes pipeline status and control over HTTP.
//
//	GET  /pipelines                 every pipeline, in load order
//	GET  /pipelines/{name}          one pipeline
//	PUT  /pipelines/{name}/enable   body "true" or "false"
//	POST /pipelines/{name}/rescan   rebuild trigger and body caches
//	GET  /metrics                   Prometheus exposition
//	GET  /healthz                   aggregate health, 503 when unhealthy
//
// {name} is either the URL-escaped prefix or the prefix with its outer
// slashes trimmed and inner slashes turned into dots ("varmsg.gps" for
// "/varmsg/gps"). Control requests are queued to the scheduler loop and
// the reply is sent once the loop has applied them.
package api
