/*
Package types provides the contracts shared between the docsync engine and
its collaborators.

# Architecture Overview

	┌──────────────────────────────────────────────┐
	│      CLI / HTTP API (cmd/docsync, pkg/api)   │
	└──────────────────────────────────────────────┘
	                      │
	┌──────────────────────────────────────────────┐
	│        Sync engine (internal/engine)         │
	│  discovery · ranking · write · aggregate ·   │
	│  cleaner                                     │
	└──────────────────────────────────────────────┘
	        │                 │                │
	┌───────┴──────┐  ┌───────┴──────┐  ┌──────┴──────┐
	│  BlobStore   │  │    Cache     │  │  Metrics    │
	│ (s3, memory) │  │(memory, bolt)│  │(prometheus) │
	└──────────────┘  └──────────────┘  └─────────────┘

# Core Interfaces

BlobStore:
The only durable, multi-device backend. It can list by prefix, upload to a
caller-chosen key, fetch by public URL and delete. There is no compare-and-swap
and no ordering guarantee on listings, so every consistency decision is made
by the engine on top of these four calls.

Cache:
A persistent key-value store owned by the host. The engine keeps one
last-known-good snapshot per document identity in it and never treats it as
authoritative. A second, separate Cache instance receives writes that could
not reach the BlobStore.

MetricsRecorder:
Operation counters and latencies; the engine reports to a no-op recorder
unless one is injected.

# Data Structures

ObjectInfo is a listing entry (a candidate blob). UploadResult reports the
key and public URL of an uploaded blob. CacheStats summarizes cache activity.
*/
package types
