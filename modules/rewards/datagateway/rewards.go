package datagateway

import (
	"context"

	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
)

// ReportDataGateway is the single-document store contract for Hub reports,
// keyed by the report's content hash.
type ReportDataGateway interface {
	GetReport(ctx context.Context, hash string) (*entity.HubReport, error)
	SaveReport(ctx context.Context, report entity.HubReport) error

	// ListReportsByPeriod returns every report attributed to the period,
	// ordered by hash for deterministic aggregation.
	ListReportsByPeriod(ctx context.Context, period entity.RewardPeriod) ([]entity.HubReport, error)
}

// RewardDataGateway persists per-period reward aggregates.
type RewardDataGateway interface {
	GetReward(ctx context.Context, id string) (*entity.UemReward, error)
	SaveReward(ctx context.Context, reward entity.UemReward) error
}
