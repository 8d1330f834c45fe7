/*
Package types provides the shared type contracts of the textflow engine.

types is the lowest-level public package and depends on nothing internal.
It defines the request/event vocabulary exchanged between the dispatcher,
the stream assembler, the cache, and the interactive surface, plus the
structured error taxonomy used across all of them.

Core types:

  - Request / Fingerprint — a unit of dispatchable work and its identity
  - StreamChunk           — one raw upstream fragment (payload + done flag)
  - Event / EventKind     — the four subscriber notifications
    (delta / complete / error / cancelled)
  - Error / ErrorCode     — structured errors with retryable and partial-text
    metadata
*/
package types
