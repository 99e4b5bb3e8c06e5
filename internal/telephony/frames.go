package telephony

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// Event names on the Exotel media WebSocket
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventDTMF      = "dtmf"
	EventMark      = "mark"
	EventClear     = "clear"
	EventStop      = "stop"
)

// Message represents a JSON frame on the Exotel media WebSocket
type Message struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequence_number,omitempty"`
	StreamSid      string `json:"stream_sid,omitempty"`
	Start          *Start `json:"start,omitempty"`
	Media          *Media `json:"media,omitempty"`
	DTMF           *DTMF  `json:"dtmf,omitempty"`
	Mark           *Mark  `json:"mark,omitempty"`
	Stop           *Stop  `json:"stop,omitempty"`
}

// Start carries the stream identity delivered on the start event
type Start struct {
	StreamSid        string            `json:"stream_sid"`
	CallSid          string            `json:"call_sid"`
	AccountSid       string            `json:"account_sid"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	CustomParameters map[string]string `json:"custom_parameters,omitempty"`
}

// Media carries one base64-encoded PCM chunk
type Media struct {
	Payload string `json:"payload"`
	Rate    int    `json:"rate,omitempty"`
}

// DTMF carries a single keypad digit
type DTMF struct {
	Digit string `json:"digit"`
}

// Mark is a named marker frame; outbound marks track audio chunks and
// keep-alives
type Mark struct {
	Name string `json:"name"`
}

// Stop signals the end of the media stream
type Stop struct {
	CallSid string `json:"call_sid,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ParseMessage decodes one frame from the wire
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed telephony frame: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("telephony frame missing event field")
	}
	return &msg, nil
}

// Writer serializes outbound frames on the telephony socket and stamps them
// with strictly increasing sequence numbers starting at 1. gorilla/websocket
// allows one concurrent writer, so all senders go through the mutex here.
type Writer struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	streamSid string
	seq       uint64
}

// NewWriter creates a writer for an accepted telephony connection
func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{conn: conn}
}

// SetStreamSid records the stream identity once the start frame arrives
func (w *Writer) SetStreamSid(sid string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.streamSid = sid
}

// StreamSid returns the current stream identity
func (w *Writer) StreamSid() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streamSid
}

// SendMedia emits a media frame carrying base64 PCM
func (w *Writer) SendMedia(payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.streamSid == "" {
		return fmt.Errorf("stream_sid not set, cannot send media")
	}
	w.seq++
	return w.conn.WriteJSON(Message{
		Event:          EventMedia,
		SequenceNumber: strconv.FormatUint(w.seq, 10),
		StreamSid:      w.streamSid,
		Media:          &Media{Payload: payload},
	})
}

// SendMark emits a named mark frame
func (w *Writer) SendMark(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.streamSid == "" {
		return fmt.Errorf("stream_sid not set, cannot send mark")
	}
	w.seq++
	return w.conn.WriteJSON(Message{
		Event:          EventMark,
		SequenceNumber: strconv.FormatUint(w.seq, 10),
		StreamSid:      w.streamSid,
		Mark:           &Mark{Name: name},
	})
}

// Sequence returns the last sequence number stamped on the wire
func (w *Writer) Sequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}
