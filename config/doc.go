// Package config loads the varmsg service configuration and the pipeline
// definition files.
//
// # Service configuration
//
// Config holds the NATS connection, the directory backend, where pipeline
// files live, and the HTTP port. Loader merges built-in defaults, any
// number of JSON (comments allowed) layers, and VARMSG_* environment
// overrides, in that order:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/varmsg/varmsg.jsonc")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// # Pipeline files
//
// Each pipeline is one .json, .jsonc, .yaml or .yml document:
//
//	{
//	    "enabled": true,
//	    "prefix": "/varmsg/gps",
//	    "interval": 60,
//	    "trigger": ["/sys/gps/fix"],
//	    "vars": { "tags": "gps" },
//	    "output_type": "mqueue",
//	    "output": "/telemetry/gps",
//	    "header": "/usr/share/varmsg/gps.header"
//	}
//
// Documents are checked against an embedded JSON schema, then against
// struct rules. LoadPipelineDir processes files in lexical order and skips
// (and reports) files that fail. Prefixes must be unique; later duplicates
// are dropped by UniquePrefixes.
package config
