package escrow

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"filippo.io/age/armor"
)

// ageVersionLine is the first header line of an age v1 envelope, the format
// tlock capsules are wrapped in.
const ageVersionLine = "age-encryption.org/v1"

// EnvelopeInfo is the structural metadata extracted from a capsule without
// decrypting it. Used to validate an escrow before accepting it.
type EnvelopeInfo struct {
	Round     uint64
	ChainHash string
}

// ParseEnvelope structurally validates a tlock capsule and extracts its
// binding fields. Handles both armored and binary age envelopes. This is a
// pre-acceptance check only; it proves nothing about the plaintext.
func ParseEnvelope(capsuleBytes []byte) (*EnvelopeInfo, error) {
	if len(capsuleBytes) == 0 {
		return nil, fmt.Errorf("empty capsule")
	}

	// Unwrap armor if present
	var reader io.Reader = bytes.NewReader(capsuleBytes)
	bufReader := bufio.NewReader(reader)
	if peek, _ := bufReader.Peek(len(armor.Header)); string(peek) == armor.Header {
		reader = armor.NewReader(bufReader)
	} else {
		reader = bufReader
	}

	// The age header is ASCII lines terminated by a line starting with "---"
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		return nil, fmt.Errorf("invalid age envelope: missing header")
	}
	if scanner.Text() != ageVersionLine {
		return nil, fmt.Errorf("invalid age envelope: unexpected version line %q", scanner.Text())
	}

	var info *EnvelopeInfo
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "---") {
			break
		}
		// Stanza start: "-> tlock <round> <chainHashHex>"
		if !strings.HasPrefix(line, "-> tlock ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed tlock stanza: %q", line)
		}
		round, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed tlock round: %w", err)
		}
		info = &EnvelopeInfo{
			Round:     round,
			ChainHash: fields[3],
		}
	}
	if info == nil {
		return nil, fmt.Errorf("capsule has no tlock stanza")
	}
	return info, nil
}
