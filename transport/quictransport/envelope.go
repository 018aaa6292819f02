package quictransport

import (
	"encoding/binary"
	"fmt"
)

// encodeEnvelope packs an operation name and its raw parameter
// encapsulation into a single datagram payload. Unlike the gRPC transport,
// a QUIC datagram has no method-dispatch framing of its own, so the
// operation name travels inside the payload itself.
func encodeEnvelope(operation string, params []byte) []byte {
	buf := make([]byte, 2+len(operation)+len(params))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(operation)))
	copy(buf[2:], operation)
	copy(buf[2+len(operation):], params)
	return buf
}

func decodeEnvelope(payload []byte) (operation string, params []byte, err error) {
	if len(payload) < 2 {
		return "", nil, fmt.Errorf("datagram payload too short for envelope header")
	}
	opLen := int(binary.BigEndian.Uint16(payload[:2]))
	if len(payload) < 2+opLen {
		return "", nil, fmt.Errorf("datagram payload too short for declared operation length")
	}
	operation = string(payload[2 : 2+opLen])
	params = payload[2+opLen:]
	return operation, params, nil
}
