package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎 v3 语音 websocket 二进制帧：4 字节头 + 可选序号/事件 + 长度前缀 payload。

const protocolVersion = 0b0001

// MessageType 帧类型
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// MessageFlags 帧标志位，低两位描述序号，第三位表示携带事件。
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	LastPacketNoSequence   MessageFlags = 0b0010
	NegativeSequenceNumber MessageFlags = 0b0011
	WithEvent              MessageFlags = 0b0100

	sequenceMask MessageFlags = 0b0011
)

// EventType 服务端事件
type EventType int32

const (
	EventTypeNone               EventType = 0
	EventTypeStartConnection    EventType = 1
	EventTypeFinishConnection   EventType = 2
	EventTypeConnectionStarted  EventType = 50
	EventTypeConnectionFailed   EventType = 51
	EventTypeConnectionFinished EventType = 52
	EventTypeSessionStarted     EventType = 150
	EventTypeSessionFinished    EventType = 152
	EventTypeSessionFailed      EventType = 153
)

// Serialization 序列化方式
type Serialization uint8

const (
	NoSerialization   Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Compression 压缩方式
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// Frame 是一条协议消息。
type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization Serialization
	Compression   Compression
	Sequence      int32
	Event         EventType
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

// NewClientRequest 构造一条 JSON 完整请求帧，gzip 为真时压缩 payload。
func NewClientRequest(payload []byte, gzipped bool) (*Frame, error) {
	f := &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequenceNumber,
		Serialization: JSONSerialization,
		Compression:   NoCompression,
		Payload:       payload,
	}
	if gzipped {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return nil, err
		}
		f.Compression = GzipCompression
		f.Payload = compressed
	}
	return f, nil
}

func (f *Frame) hasSequence() bool {
	s := f.Flags & sequenceMask
	return s == PositiveSequenceNumber || s == NegativeSequenceNumber
}

func (f *Frame) hasEvent() bool {
	return f.Flags&WithEvent == WithEvent
}

// Last 报告是否为最后一包。
func (f *Frame) Last() bool {
	s := f.Flags & sequenceMask
	return s == LastPacketNoSequence || s == NegativeSequenceNumber
}

// Finished 报告会话是否以本帧结束。
func (f *Frame) Finished() bool {
	return f.Last() || (f.hasEvent() && f.Event == EventTypeSessionFinished)
}

// Body 返回解压后的 payload。
func (f *Frame) Body() ([]byte, error) {
	switch f.Compression {
	case NoCompression:
		return f.Payload, nil
	case GzipCompression:
		return gunzipBytes(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}

// MarshalBinary 编码为线上格式。
func (f *Frame) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | 0b0001,
		uint8(f.Type)<<4 | uint8(f.Flags),
		uint8(f.Serialization)<<4 | uint8(f.Compression),
		0,
	})

	if f.hasSequence() {
		writeUint32(&buf, uint32(f.Sequence))
	}
	if f.hasEvent() {
		writeUint32(&buf, uint32(f.Event))
		if !eventSkipsSessionID(f.Event) {
			writeSized(&buf, []byte(f.SessionID))
		}
		if eventHasConnectID(f.Event) {
			writeSized(&buf, []byte(f.ConnectID))
		}
	}
	if f.Type == ErrorMessage {
		writeUint32(&buf, f.ErrorCode)
	}
	writeSized(&buf, f.Payload)

	return buf.Bytes(), nil
}

// ReadFrame 从 r 解码一帧。
func ReadFrame(r io.Reader) (*Frame, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if v := head[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}

	f := &Frame{
		Type:          MessageType(head[1] >> 4),
		Flags:         MessageFlags(head[1] & 0x0F),
		Serialization: Serialization(head[2] >> 4),
		Compression:   Compression(head[2] & 0x0F),
	}

	// header size 以 4 字节为单位，超出部分是扩展头，直接跳过。
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	if f.hasSequence() {
		seq, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
		f.Sequence = int32(seq)
	}

	if f.hasEvent() {
		event, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read event type: %w", err)
		}
		f.Event = EventType(int32(event))

		if !eventSkipsSessionID(f.Event) {
			session, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read session id: %w", err)
			}
			f.SessionID = string(session)
		}
		if eventHasConnectID(f.Event) {
			connect, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read connect id: %w", err)
			}
			f.ConnectID = string(connect)
		}
	}

	if f.Type == ErrorMessage {
		code, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
		f.ErrorCode = code
	}

	payload, err := readSized(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	f.Payload = payload
	return f, nil
}

func eventSkipsSessionID(event EventType) bool {
	switch event {
	case EventTypeStartConnection, EventTypeFinishConnection,
		EventTypeConnectionStarted, EventTypeConnectionFailed,
		EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

func eventHasConnectID(event EventType) bool {
	switch event {
	case EventTypeConnectionStarted, EventTypeConnectionFailed, EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeSized(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readSized(r io.Reader) ([]byte, error) {
	size, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("expected %d bytes: %w", size, err)
	}
	return data, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}
