package heat

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// DecodePointData decodes a point batch received over MQTT:
// - Raw JSON, either an array or {"points": [...]}
// - Zlib-compressed JSON
func DecodePointData(data []byte) ([]WeightedPoint, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	jsonBytes := trimmed
	if trimmed[0] != '{' && trimmed[0] != '[' {
		inflated, err := inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON or zlib-compressed")
		}
		jsonBytes = inflated
	}

	if len(bytes.TrimSpace(jsonBytes)) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}

	return ParsePointsJSON(jsonBytes)
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}

	return decompressed, nil
}
