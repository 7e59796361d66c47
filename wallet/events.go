package wallet

// EventType names a wallet domain event.
type EventType string

// Deployment events.
const (
	EventDeploymentStarted            EventType = "DeploymentStarted"
	EventWalletConfigured             EventType = "WalletConfigured"
	EventDeploymentFunded             EventType = "DeploymentFunded"
	EventCreationStarted              EventType = "CreationStarted"
	EventWalletTransactionHashIsKnown EventType = "WalletTransactionHashIsKnown"
	EventWalletCreated                EventType = "WalletCreated"
	EventWalletCreationFailed         EventType = "WalletCreationFailed"
	EventDeploymentAborted            EventType = "DeploymentAborted"
)

// Recovery events.
const (
	EventRecoveryStarted   EventType = "RecoveryStarted"
	EventWalletRecovered   EventType = "WalletRecovered"
	EventRecoveryCompleted EventType = "RecoveryCompleted"
	EventRecoveryAborted   EventType = "RecoveryAborted"
)

// Event is published after a wallet transition has been persisted.
type Event struct {
	Type     EventType
	WalletID ID
	From     State
	To       State
}

// EventName implements events.Event.
func (e Event) EventName() string { return string(e.Type) }
