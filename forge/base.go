package forge

// The SystemType identifies each of the engine systems.
type SystemType uint

const (
	SystemTypeUnknown SystemType = iota
	SystemTypeEvents
	SystemTypeRules
	SystemTypeRewards
	SystemTypeWallets
	SystemTypeLeaderboards
	SystemTypeSandbox
)

// A System is a single engine feature set with its own configuration.
type System interface {
	// GetType returns the type of the system.
	GetType() SystemType

	// GetConfig returns the configuration of the system.
	GetConfig() any
}

// Forge combines all engine systems behind one composition root.
type Forge interface {
	GetEventsSystem() EventsSystem
	GetRulesSystem() RulesSystem
	GetRewardsSystem() RewardsSystem
	GetWalletsSystem() WalletsSystem
	GetLeaderboardsSystem() LeaderboardsSystem
	GetSandboxSystem() SandboxSystem

	// AddPublisher registers a target for reward events generated server-side.
	AddPublisher(publisher Publisher)

	// Processor exposes the queue processor for observability surfaces.
	Processor() *QueueProcessor

	// Metrics exposes the Prometheus collectors.
	Metrics() *Metrics

	// Start launches the queue processor and scheduled maintenance jobs.
	Start() error
	// Stop signals cancellation and waits for in-flight work to settle.
	Stop()
}
