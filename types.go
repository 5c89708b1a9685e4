package assistant

import "github.com/ashita-ai/akashi-assistant/internal/toolregistry"

// Registrar is the tool catalog handed to ToolInstaller functions at
// startup. It's the toolregistry.Registry itself — exported under this
// name at the public boundary so tool-implementation packages don't need
// to import internal/toolregistry directly.
type Registrar = toolregistry.Registry

// AgentStatus mirrors internal/agentmgr.Status at the public boundary.
type AgentStatus string

const (
	AgentRunning   AgentStatus = "running"
	AgentSucceeded AgentStatus = "succeeded"
	AgentFailed    AgentStatus = "failed"
	AgentCancelled AgentStatus = "cancelled"
)

// WarmupStatus reports the outcome of the startup warmup sequence, for
// health-check wiring.
type WarmupStatus struct {
	OK      bool
	Summary string
}
