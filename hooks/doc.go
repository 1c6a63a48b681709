/*
Package hooks carries lifecycle notifications out of the engine.

Events ({timestamp, action, details}) are emitted through an Emitter. The Bus
implementation queues them without blocking and dispatches them to a Registry,
an explicit table of named handlers ordered by priority. Handler failures and
panics are logged and never reach the emitter.

Bundled handlers: AuditLog (in-memory), LogSink (zap) and RedisStreamSink
(Redis XADD).
*/
package hooks
