package k6

// ResponseKind classifies the raw bytes read back after a command send.
type ResponseKind uint8

const (
	// RespNone means no bytes arrived within the read window.
	RespNone ResponseKind = iota
	// RespACK means the window contained at least one ACK byte.
	RespACK
	// RespHeartbeat means the window contained only keep-alive frames.
	RespHeartbeat
	// RespHeartbeatACK means the window mixed keep-alives with an ACK.
	RespHeartbeatACK
	// RespStatus means the window ended in a progress frame.
	RespStatus
	// RespOther means the window contained bytes matching no known frame.
	RespOther
)

// String returns the response kind's audit-log name.
func (k ResponseKind) String() string {
	switch k {
	case RespNone:
		return "NONE"
	case RespACK:
		return "ACK"
	case RespHeartbeat:
		return "HEARTBEAT"
	case RespHeartbeatACK:
		return "HEARTBEAT+ACK"
	case RespStatus:
		return "STATUS"
	default:
		return "OTHER"
	}
}

// Response is the interpreted result of one read window.
type Response struct {
	Raw        []byte
	Kind       ResponseKind
	Heartbeats int
	ACKs       int
	StatusPct  int // -1 unless a status frame was seen
}

// HasACK reports whether the window contained a positive acknowledgement.
func (r Response) HasACK() bool { return r.ACKs > 0 }

// ClassifyResponse interprets a raw read window.
//
// The device interleaves three frame kinds on the wire: single-byte ACKs
// (0x09), 4-byte heartbeats (FF FF FF FE) and 4-byte status frames
// (FF FF 00 XX, XX in [0,100]). A single window may contain several of each;
// the scanner consumes 4-byte frames greedily and counts loose ACK bytes
// between them. When multiple status frames appear the last one wins.
func ClassifyResponse(data []byte) Response {
	resp := Response{Raw: data, StatusPct: -1}
	if len(data) == 0 {
		resp.Kind = RespNone
		return resp
	}

	unknown := 0
	for i := 0; i < len(data); {
		switch {
		case i+4 <= len(data) &&
			data[i] == 0xFF && data[i+1] == 0xFF && data[i+2] == 0xFF && data[i+3] == 0xFE:
			resp.Heartbeats++
			i += 4
		case i+4 <= len(data) &&
			data[i] == statusByte0 && data[i+1] == statusByte1 && data[i+2] == statusByte2 && data[i+3] <= 100:
			resp.StatusPct = int(data[i+3])
			i += 4
		case data[i] == ACK:
			resp.ACKs++
			i++
		default:
			unknown++
			i++
		}
	}

	switch {
	case resp.StatusPct >= 0:
		resp.Kind = RespStatus
	case resp.Heartbeats > 0 && resp.ACKs > 0:
		resp.Kind = RespHeartbeatACK
	case resp.ACKs > 0:
		resp.Kind = RespACK
	case resp.Heartbeats > 0:
		resp.Kind = RespHeartbeat
	default:
		resp.Kind = RespOther
	}

	if resp.Kind != RespOther && unknown > 0 {
		// Known frames mixed with garbage; report the dominant interpretation
		// but keep the raw bytes so callers can dump them.
		resp.Kind = RespOther
	}

	return resp
}
