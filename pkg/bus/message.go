package bus

import "time"

// MessageType is the closed set of envelope types exchanged over the bus.
type MessageType string

const (
	AgentRequest     MessageType = "AGENT_REQUEST"
	AgentResponse    MessageType = "AGENT_RESPONSE"
	TaskAssigned     MessageType = "TASK_ASSIGNED"
	TaskComplete     MessageType = "TASK_COMPLETE"
	StageStart       MessageType = "STAGE_START"
	StageComplete    MessageType = "STAGE_COMPLETE"
	UserFeedback     MessageType = "USER_FEEDBACK"
	WorkflowCanceled MessageType = "WORKFLOW_CANCELED"
)

// SenderWorkflow and SenderUser are the two non-role sender identities a
// Message's Sender field may carry, alongside any stage.Role value.
const (
	SenderWorkflow = "workflow"
	SenderUser     = "user"
)

// Message is a typed envelope exchanged over the Bus.
type Message struct {
	ID            string
	Type          MessageType
	Sender        string
	Receiver      string // "" means broadcast
	CorrelationID string
	Payload       map[string]any
	CreatedAt     time.Time
}
