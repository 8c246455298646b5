package ws

import "encoding/json"

// 帧类型
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePublish     = "publish"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// Frame 网关 WebSocket 帧。topic 与 NATS subject 一致，payload 为 JSON 信封。
type Frame struct {
	Type    string          `json:"type"`
	ReqID   string          `json:"req_id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}
