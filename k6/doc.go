// Package k6 implements the Wainlux K6 laser engraver protocol over a serial
// point-to-point link.
//
// The package is layered bottom-up:
//
//   - Frame codec: pure functions building the binary wire frames (DATA,
//     JOB_HEADER, BOUNDS, INIT and the fixed 4-byte commands), all protected
//     by an 8-bit two's-complement checksum.
//   - Command model: typed, immutable Command values plus CommandSequence,
//     an ordered container with aggregate statistics and spatial bounds,
//     enabling preview and validation without hardware.
//   - Session: the send/await-response primitive with ACK/heartbeat/status
//     interpretation, the connect sequence, and the composite engrave, mark
//     and bounds-preview operations built on top of it.
//   - Chunked transfer engine: splits packed raster scanlines into bounded
//     DATA frames and sends them with per-chunk retry and exponential
//     backoff; the only place in the stack that retries.
//   - Completion watcher: scans the post-transfer byte stream for progress
//     frames and decides between completion, idle timeout and hard timeout.
//
// A Session owns exactly one transport.Transport and enforces a single
// in-flight operation via a mutex held for the duration of each composite
// operation. Cancellation is cooperative: a context is observed between
// frames, never mid-frame.
package k6
