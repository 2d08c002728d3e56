package ipcsession

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys for the trimmed Req/End/Err wire frame (spec.md §6).
const (
	keyVersion     = 0 // version (u8, always ProtocolVersion)
	keyFrameType   = 1 // frame_type (u8)
	keyId          = 2 // id / cid (u64)
	keyContentType = 4 // content_type (tstr, optional)
	keyMeta        = 5 // meta (map, optional - ERR code/message)
	keyPayload     = 6 // payload (bstr, optional)
	keyEof         = 9 // eof (bool, optional)
	keyCap         = 10 // cap (tstr, optional - cap URN for REQ)
)

// EncodeFrame encodes a Frame to CBOR bytes using integer keys.
func EncodeFrame(frame *Frame) ([]byte, error) {
	m := make(map[int]interface{})

	m[keyVersion] = uint8(ProtocolVersion)
	m[keyFrameType] = uint8(frame.FrameType)
	m[keyId] = frame.Id

	if frame.ContentType != nil && *frame.ContentType != "" {
		m[keyContentType] = *frame.ContentType
	}
	if len(frame.Meta) > 0 {
		m[keyMeta] = frame.Meta
	}
	if frame.Payload != nil {
		m[keyPayload] = frame.Payload
	}
	if frame.Eof != nil && *frame.Eof {
		m[keyEof] = true
	}
	if frame.Cap != nil && *frame.Cap != "" {
		m[keyCap] = *frame.Cap
	}

	return cbor.Marshal(m)
}

// DecodeFrame decodes CBOR bytes to a Frame using integer keys.
func DecodeFrame(data []byte) (*Frame, error) {
	var m map[int]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	frame := &Frame{}

	verVal, ok := m[keyVersion]
	if !ok {
		return nil, errors.New("missing version (key 0)")
	}
	ver, ok := verVal.(uint64)
	if !ok {
		return nil, errors.New("version must be uint")
	}
	frame.Version = uint8(ver)
	if frame.Version != ProtocolVersion {
		return nil, fmt.Errorf("invalid version %d, expected %d", frame.Version, ProtocolVersion)
	}

	ftVal, ok := m[keyFrameType]
	if !ok {
		return nil, errors.New("missing frame_type (key 1)")
	}
	ft, ok := ftVal.(uint64)
	if !ok {
		return nil, errors.New("frame_type must be uint")
	}
	frameType := FrameType(ft)
	if frameType > FrameTypeErr {
		return nil, fmt.Errorf("invalid frame_type %d", ft)
	}
	frame.FrameType = frameType

	idVal, ok := m[keyId]
	if !ok {
		return nil, errors.New("missing id (key 2)")
	}
	id, ok := idVal.(uint64)
	if !ok {
		return nil, errors.New("id must be uint")
	}
	frame.Id = id

	if ctVal, ok := m[keyContentType]; ok {
		if ct, ok := ctVal.(string); ok {
			frame.ContentType = &ct
		}
	}

	if metaVal, ok := m[keyMeta]; ok {
		if meta, ok := metaVal.(map[interface{}]interface{}); ok {
			frame.Meta = make(map[string]interface{})
			for k, v := range meta {
				if ks, ok := k.(string); ok {
					frame.Meta[ks] = v
				}
			}
		}
	}

	if payloadVal, ok := m[keyPayload]; ok {
		if payload, ok := payloadVal.([]byte); ok {
			frame.Payload = payload
		}
	}

	if eofVal, ok := m[keyEof]; ok {
		if eof, ok := eofVal.(bool); ok {
			frame.Eof = &eof
		}
	}

	if capVal, ok := m[keyCap]; ok {
		if cap, ok := capVal.(string); ok {
			frame.Cap = &cap
		}
	}

	return frame, nil
}
