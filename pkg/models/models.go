// Package models defines the entities of the flow engine as they exist in
// the platform database, plus the stream payloads exchanged with session
// adapters. The schema is owned by the admin platform; the core only reads
// and writes rows, it never migrates.
package models

import (
	"encoding/json"
	"time"
)

// StepType classifies what a step does when dispatched.
type StepType string

// Step type constants.
const (
	StepTypeText            StepType = "TEXT"
	StepTypeImage           StepType = "IMAGE"
	StepTypeAudio           StepType = "AUDIO"
	StepTypeVideo           StepType = "VIDEO"
	StepTypeDocument        StepType = "DOCUMENT"
	StepTypePTT             StepType = "PTT"
	StepTypeConditionalTime StepType = "CONDITIONAL_TIME"
)

// MatchType selects the trigger matching rule.
type MatchType string

// Match type constants. Regex is reserved in the data model but has no
// matcher implementation; such triggers never fire.
const (
	MatchTypeExact    MatchType = "EXACT"
	MatchTypeContains MatchType = "CONTAINS"
	MatchTypeRegex    MatchType = "REGEX"
)

// TriggerScope restricts a trigger to message direction.
type TriggerScope string

// Trigger scope constants.
const (
	ScopeIncoming TriggerScope = "INCOMING"
	ScopeOutgoing TriggerScope = "OUTGOING"
	ScopeBoth     TriggerScope = "BOTH"
)

// Platform identifies the chat platform a session lives on.
type Platform string

// Platform constants.
const (
	PlatformWhatsApp Platform = "WHATSAPP"
	PlatformTelegram Platform = "TELEGRAM"
)

// SessionStatus is the connection state of a bot session.
type SessionStatus string

// Session status constants.
const (
	SessionConnected      SessionStatus = "CONNECTED"
	SessionDisconnected   SessionStatus = "DISCONNECTED"
	SessionAuthenticating SessionStatus = "AUTHENTICATING"
	SessionFailed         SessionStatus = "FAILED"
)

// ExecutionStatus is the lifecycle state of a flow execution.
type ExecutionStatus string

// Execution status constants. Completed and Failed are terminal.
const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// Flow is an ordered list of steps a bot performs as one scripted
// interaction.
type Flow struct {
	ID            string
	BotID         string
	Name          string
	Description   *string
	CooldownMs    int
	UsageLimit    int
	ExcludesFlows []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Trigger binds a keyword rule to a flow. Admission queries join the owning
// flow's constraint fields onto the trigger row, so the engine never needs a
// second round trip for them.
type Trigger struct {
	ID        string
	BotID     string
	SessionID *string // nil means the trigger applies to every session of the bot
	Keyword   string
	MatchType MatchType
	IsActive  bool
	FlowID    string
	Scope     TriggerScope
	CreatedAt time.Time
	UpdatedAt time.Time

	// Joined from Flow.
	CooldownMs    int
	UsageLimit    int
	ExcludesFlows []string
}

// Step is one atomic action inside a flow. Metadata is opaque except for
// CONDITIONAL_TIME steps, where it carries the branch table.
type Step struct {
	ID        string
	FlowID    string
	Type      StepType
	Content   *string
	MediaURL  *string
	Metadata  json.RawMessage
	DelayMs   int
	JitterPct int
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Execution is a single run of a flow for a session and counterparty.
// CurrentStep is the order of the step about to be dispatched, which is what
// makes crash recovery a plain re-schedule.
type Execution struct {
	ID              string
	SessionID       string
	FlowID          string
	PlatformUserID  string
	Status          ExecutionStatus
	CurrentStep     int
	VariableContext json.RawMessage
	StartedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	Error           *string
	Trigger         *string
}

// Session is a bot's live presence on a platform.
type Session struct {
	ID         string
	Platform   Platform
	Identifier string
	BotID      string
	Name       *string
	Status     SessionStatus
	AuthData   json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
