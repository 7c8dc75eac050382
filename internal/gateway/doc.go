/*
Gateway keeps one resumable session with the real-time event gateway alive.

# Module
  - handshake: Hello, then Identify or Resume, until Ready
  - heartbeat: jittered first beat, fixed interval, zombie detection
  - reconnect: close classification and exponential backoff
  - presence: status rotation while Ready

# Source
  - frames from pkg/websocket

# Produce
  - dispatch events to the caller's Handler

# Sharded
  - none

Only sequence numbers and session identifiers are interpreted; event
payloads are handed to the Handler untouched.
*/
package gateway
