/*
Package log provides structured logging for shelfdb using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("query")                   │          │
	│  │  - WithKind("Widget:1")                     │          │
	│  │  - WithShard(42)                            │          │
	│  │  - WithWatcher(watcherID)                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "query",                    │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "plan selected index"         │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-30T10:30:00Z INF plan selected index component=query │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Log Levels

Debug:
  - Purpose: detailed tracing (plan selection, overlay merges)
  - Usage: development and troubleshooting

Info:
  - Purpose: lifecycle events (shard mounted, compaction ran)
  - Usage: default production level

Warn:
  - Purpose: recoverable anomalies (skipped inconsistent index row)
  - Usage: situations worth surfacing but not failing the call

Error:
  - Purpose: operation failures
  - Usage: failed puts, commit errors, storage failures

Fatal:
  - Purpose: unrecoverable startup errors
  - Behavior: logs the message and exits the process

# Usage

Initializing the logger:

	import "github.com/shelfdb/shelfdb/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("engine started")
	log.Debug("checking shard status")
	log.Warn("index entry points at a missing object")
	log.Error("failed to commit transaction")
	log.Fatal("cannot start without a writable data directory") // exits process

Component loggers:

	queryLog := log.WithComponent("query")
	queryLog.Info().Msg("plan selected index")

	shardLog := log.WithShard(42).With().Str("kind", "Widget:1").Logger()
	shardLog.Warn().Msg("skipping row with missing primary record")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields (component, kind, shard, watcher)
  - Pass context loggers down instead of logging bare strings
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err), not string concatenation
  - Enables log aggregation and querying by field

# Security

  - Never log document bodies or owner tokens at Info level or above
  - Use typed fields for any caller-supplied string to avoid log injection
*/
package log
