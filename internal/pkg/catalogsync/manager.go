package catalogsync

import (
	"sync"

	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/marketplace"
)

var (
	globalOrchestrator *Orchestrator
	globalLedger       *Ledger
	globalSweeper      *Sweeper
	orchestratorOnce   sync.Once
)

// GetOrchestrator returns the global sync orchestrator (singleton). All
// callers share it so per-account fetch lanes and token refresh locks
// stay process-wide.
func GetOrchestrator() *Orchestrator {
	orchestratorOnce.Do(buildGlobals)
	return globalOrchestrator
}

// GetLedger returns the global job ledger (singleton).
func GetLedger() *Ledger {
	orchestratorOnce.Do(buildGlobals)
	return globalLedger
}

// GetSweeper returns the global stale job sweeper (singleton).
func GetSweeper() *Sweeper {
	orchestratorOnce.Do(buildGlobals)
	return globalSweeper
}

func buildGlobals() {
	repos := repository.GetGlobalFactory()

	globalLedger = NewLedger(repos.GetSyncJobRepository())
	globalSweeper = NewSweeper(repos.GetSyncJobRepository())
	globalOrchestrator = NewOrchestrator(
		globalLedger,
		marketplace.GetTokenService(),
		marketplace.NewClientFromEnv(),
		repos.GetMarketplaceAccountRepository(),
		repos.GetProductRepository(),
		repos.GetProductSyncStateRepository(),
	)
}
