package models

import (
	"encoding/json"
	"fmt"
)

// Ingress payload type discriminators.
const (
	PayloadTypeNewMessage  = "NEW_MESSAGE"
	PayloadTypeExecuteStep = "EXECUTE_STEP"
)

// NewMessagePayload is a chat event observed by a session adapter and
// published on the incoming stream.
type NewMessagePayload struct {
	BotID      string         `json:"botId"`
	SessionID  string         `json:"sessionId"`
	Identifier string         `json:"identifier"`
	Platform   Platform       `json:"platform"`
	FromMe     bool           `json:"fromMe"`
	Sender     string         `json:"sender"`
	Message    MessageContent `json:"message"`
}

// MessageContent carries the chat message body. Adapters attach more fields
// (media, quoted message) that the core does not read.
type MessageContent struct {
	Text *string `json:"text,omitempty"`
}

// ExecuteStepPayload is the legacy external dispatch of a single step.
type ExecuteStepPayload struct {
	ExecutionID string `json:"executionId"`
	StepID      string `json:"stepId"`
}

// IncomingPayload is the decoded form of an incoming-stream entry. Exactly
// one of NewMessage / ExecuteStep is non-nil, according to Type.
type IncomingPayload struct {
	Type        string
	NewMessage  *NewMessagePayload
	ExecuteStep *ExecuteStepPayload
}

// DecodeIncomingPayload parses the JSON value of a stream entry's "payload"
// field. Unknown or missing discriminators are errors so the consumer can
// ack-and-drop them.
func DecodeIncomingPayload(data []byte) (*IncomingPayload, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}

	switch head.Type {
	case PayloadTypeNewMessage:
		var p NewMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("invalid NEW_MESSAGE payload: %w", err)
		}
		return &IncomingPayload{Type: head.Type, NewMessage: &p}, nil
	case PayloadTypeExecuteStep:
		var p ExecuteStepPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("invalid EXECUTE_STEP payload: %w", err)
		}
		return &IncomingPayload{Type: head.Type, ExecuteStep: &p}, nil
	default:
		return nil, fmt.Errorf("unknown payload type %q", head.Type)
	}
}

// MediaPayload references a media asset by URL.
type MediaPayload struct {
	URL string `json:"url"`
}

// OutgoingPayload is the platform-neutral body of an outbound send command.
// At most one of text/image/audio is expected to be set per step.
type OutgoingPayload struct {
	Text    *string       `json:"text"`
	Image   *MediaPayload `json:"image"`
	Audio   *MediaPayload `json:"audio"`
	Caption *string       `json:"caption"`
	PTT     *bool         `json:"ptt"`
}

// Empty reports whether the payload carries nothing worth sending.
func (p OutgoingPayload) Empty() bool {
	return p.Text == nil && p.Image == nil && p.Audio == nil
}

// OutgoingMessage is one record on the outbound stream. Downstream adapters
// dedupe by (execution_id, step_order) since step emission is at-least-once.
type OutgoingMessage struct {
	BotID       string          `json:"bot_id"`
	Target      string          `json:"target"`
	ExecutionID string          `json:"execution_id"`
	StepOrder   int             `json:"step_order"`
	Payload     OutgoingPayload `json:"payload"`
}

// ConditionalBranch is one time window of a CONDITIONAL_TIME step. Start and
// end are "HH:MM" in 24h local (America/Mexico_City) time; a start at or
// after the end means the window crosses midnight.
type ConditionalBranch struct {
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Type      string  `json:"type"`
	Content   *string `json:"content,omitempty"`
	MediaURL  *string `json:"mediaUrl,omitempty"`
}

// ConditionalFallback is the branch used when no time window matches.
type ConditionalFallback struct {
	Type     string  `json:"type"`
	Content  *string `json:"content,omitempty"`
	MediaURL *string `json:"mediaUrl,omitempty"`
}

// ConditionalTimeMetadata is the decoded metadata of a CONDITIONAL_TIME step.
type ConditionalTimeMetadata struct {
	Branches []ConditionalBranch  `json:"branches"`
	Fallback *ConditionalFallback `json:"fallback,omitempty"`
}
