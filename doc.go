// Package datagate provides an industrial data gateway: it ingests
// device data through source resources, runs it through user-configured
// rules and publishes the results through sink resources.
//
// # Architecture
//
// Three resource kinds, wired per rule:
//
//	┌──────────┐    broadcast     ┌──────────┐    push     ┌──────────┐
//	│  Source  │ ───────────────→ │   Rule   │ ──────────→ │   Sink   │
//	│ (ingest) │   (drop-oldest   │ (filter, │  (bounded   │ (encode, │
//	│          │     queues)      │  compute,│   inbox)    │  write)  │
//	└──────────┘                  │  window) │             └──────────┘
//	                              └──────────┘
//
// Sources decode raw payloads from a protocol adapter (MQTT, NATS or
// in-process) into message batches and broadcast them to every
// subscribed rule. Rules apply an ordered operator chain, optionally
// buffer through a time or count window with aggregators, and forward
// to their bound sinks. Sinks drain a bounded inbox on a dedicated
// task and hand encoded payloads to a protocol writer (file, MQTT,
// NATS or InfluxDB).
//
// Every queue between resources is bounded and drops the oldest entry
// under pressure: a slow sink never stalls a source.
//
// # Lifecycle
//
// Each resource owns a lifecycle state machine with a reference
// ledger. A rule holds references on every source and sink it binds;
// a referenced resource refuses deletion, and a resource referenced by
// a running rule refuses to stop. Runtime faults feed a debounced
// error tracker so health flips on sustained failure, not on a single
// bad payload.
//
// # Layout
//
//   - message: values, messages, batches and the codec boundary
//   - function: filters, computers, aggregators and field operators
//   - window: tumbling, hopping, session and count windows
//   - fabric: broadcasters, inboxes and subscriptions
//   - lifecycle: state machine, error tracker and reference ledger
//   - source, sink, rule: the three resource kinds
//   - engine: the Gateway owning all resources and their persistence
//   - cmd/datagate: the daemon entry point
package datagate
