// Package wire implements the UDP packet formats described in the protocol
// contract: PPG sample bundles from sensor nodes, beat events on the
// broadcast bus, and the admin restart command.
//
// No OSC (Open Sound Control) library appears anywhere in the dependency
// surface available to this project, so rather than pull one in for a single
// address-plus-arguments shape, addresses and argument vectors are encoded
// directly: a length-prefixed address string followed by a fixed,
// message-type-specific argument list, all big-endian. This keeps the same
// "address pattern + typed argument vector" contract the wire protocol
// describes without claiming OSC wire compatibility.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxSensors is N_max: sensor identities are 0 <= id < MaxSensors.
const MaxSensors = 4

// DefaultBundleSize is B, the number of samples per PPG bundle.
const DefaultBundleSize = 5

// SampleIntervalMS is the fixed inter-sample spacing on the 50 Hz grid.
const SampleIntervalMS = 1000 / 50

// MinSampleValue and MaxSampleValue bound a well-formed PPG sample. A bundle
// carrying any sample outside this range is rejected in full.
const (
	MinSampleValue = 0
	MaxSampleValue = 4095
)

const (
	addrPPGPrefix   = "/ppg/"
	addrBeatPrefix  = "/beat/"
	addrRestart     = "/restart"
	maxAddressBytes = 64
)

// PPGBundle is one `/ppg/<id>` message: B raw samples plus the sender's
// timestamp (ms, sender-local monotonic) of the first sample.
type PPGBundle struct {
	SensorID    int
	Samples     []int32
	TimestampMS int32
}

// EncodePPGBundle renders a PPGBundle onto the wire. The address is
// `/ppg/<id>`, followed by len(Samples) int32 samples and one int32
// timestamp, all big-endian.
func EncodePPGBundle(b PPGBundle) ([]byte, error) {
	if b.SensorID < 0 || b.SensorID >= MaxSensors {
		return nil, fmt.Errorf("wire: sensor id %d out of range [0,%d)", b.SensorID, MaxSensors)
	}

	var buf bytes.Buffer
	addr := fmt.Sprintf("%s%d", addrPPGPrefix, b.SensorID)
	if err := writeAddress(&buf, addr); err != nil {
		return nil, err
	}

	for _, s := range b.Samples {
		if err := binary.Write(&buf, binary.BigEndian, s); err != nil {
			return nil, fmt.Errorf("wire: encode sample: %w", err)
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, b.TimestampMS); err != nil {
		return nil, fmt.Errorf("wire: encode timestamp: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodePPGBundle parses a `/ppg/<id>` datagram. bundleSize is the
// configured B (must match the sender); a payload with any other number of
// int32 arguments is rejected, per the ingress validation rules.
func DecodePPGBundle(data []byte, bundleSize int) (PPGBundle, error) {
	var out PPGBundle

	rest, addr, err := readAddress(data)
	if err != nil {
		return out, fmt.Errorf("wire: %w", err)
	}

	id, ok := parsePPGAddress(addr)
	if !ok {
		return out, fmt.Errorf("wire: address %q is not /ppg/<id>", addr)
	}
	if id < 0 || id >= MaxSensors {
		return out, fmt.Errorf("wire: sensor id %d out of range [0,%d)", id, MaxSensors)
	}

	wantArgs := bundleSize + 1
	wantBytes := wantArgs * 4
	if len(rest) != wantBytes {
		return out, fmt.Errorf("wire: expected %d int32 args (%d bytes), got %d bytes", wantArgs, wantBytes, len(rest))
	}

	samples := make([]int32, bundleSize)
	r := bytes.NewReader(rest)
	for i := range samples {
		if err := binary.Read(r, binary.BigEndian, &samples[i]); err != nil {
			return out, fmt.Errorf("wire: decode sample %d: %w", i, err)
		}
		if samples[i] < MinSampleValue || samples[i] > MaxSampleValue {
			return out, fmt.Errorf("wire: sample %d value %d out of range [%d,%d]", i, samples[i], MinSampleValue, MaxSampleValue)
		}
	}
	var ts int32
	if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
		return out, fmt.Errorf("wire: decode timestamp: %w", err)
	}

	out.SensorID = id
	out.Samples = samples
	out.TimestampMS = ts
	return out, nil
}

// BeatEvent is a `/beat/<sensor_id>` broadcast message.
type BeatEvent struct {
	SensorID    int
	IBIMS       int32
	TimestampMS int32
	Intensity   float32
}

// EncodeBeatEvent renders a BeatEvent for the broadcast bus.
func EncodeBeatEvent(e BeatEvent) ([]byte, error) {
	if e.SensorID < 0 || e.SensorID >= MaxSensors {
		return nil, fmt.Errorf("wire: sensor id %d out of range [0,%d)", e.SensorID, MaxSensors)
	}

	var buf bytes.Buffer
	addr := fmt.Sprintf("%s%d", addrBeatPrefix, e.SensorID)
	if err := writeAddress(&buf, addr); err != nil {
		return nil, err
	}

	for _, v := range []any{e.IBIMS, e.TimestampMS, e.Intensity} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("wire: encode beat event: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeBeatEvent parses a `/beat/<sensor_id>` datagram.
func DecodeBeatEvent(data []byte) (BeatEvent, error) {
	var out BeatEvent

	rest, addr, err := readAddress(data)
	if err != nil {
		return out, fmt.Errorf("wire: %w", err)
	}

	id, ok := parseBeatAddress(addr)
	if !ok {
		return out, fmt.Errorf("wire: address %q is not /beat/<sensor_id>", addr)
	}

	const wantBytes = 4 + 4 + 4
	if len(rest) != wantBytes {
		return out, fmt.Errorf("wire: expected %d bytes of beat args, got %d", wantBytes, len(rest))
	}

	r := bytes.NewReader(rest)
	if err := binary.Read(r, binary.BigEndian, &out.IBIMS); err != nil {
		return out, fmt.Errorf("wire: decode ibi_ms: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &out.TimestampMS); err != nil {
		return out, fmt.Errorf("wire: decode timestamp_ms: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &out.Intensity); err != nil {
		return out, fmt.Errorf("wire: decode intensity: %w", err)
	}
	out.SensorID = id

	return out, nil
}

// EncodeRestart renders the `/restart` admin message. It carries no
// arguments.
func EncodeRestart() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeAddress(&buf, addrRestart); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsRestart reports whether data is a well-formed `/restart` message.
func IsRestart(data []byte) bool {
	rest, addr, err := readAddress(data)
	return err == nil && addr == addrRestart && len(rest) == 0
}

func writeAddress(buf *bytes.Buffer, addr string) error {
	if len(addr) > maxAddressBytes {
		return fmt.Errorf("wire: address %q exceeds %d bytes", addr, maxAddressBytes)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(addr))); err != nil {
		return fmt.Errorf("wire: encode address length: %w", err)
	}
	buf.WriteString(addr)
	return nil
}

func readAddress(data []byte) (rest []byte, addr string, err error) {
	if len(data) < 2 {
		return nil, "", fmt.Errorf("packet too short for address length")
	}
	n := binary.BigEndian.Uint16(data[:2])
	if int(n) > maxAddressBytes || len(data) < 2+int(n) {
		return nil, "", fmt.Errorf("malformed address length %d", n)
	}
	addr = string(data[2 : 2+int(n)])
	rest = data[2+int(n):]
	return rest, addr, nil
}

func parsePPGAddress(addr string) (id int, ok bool) {
	return parsePrefixedID(addr, addrPPGPrefix)
}

func parseBeatAddress(addr string) (id int, ok bool) {
	return parsePrefixedID(addr, addrBeatPrefix)
}

func parsePrefixedID(addr, prefix string) (id int, ok bool) {
	if len(addr) <= len(prefix) || addr[:len(prefix)] != prefix {
		return 0, false
	}
	suffix := addr[len(prefix):]
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n := 0
	for _, c := range suffix {
		n = n*10 + int(c-'0')
	}
	return n, true
}
