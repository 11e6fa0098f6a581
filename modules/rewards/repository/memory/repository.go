package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Repository is an in-memory implementation of the rewards data gateways.
type Repository struct {
	mu      sync.RWMutex
	reports map[string]entity.HubReport
	rewards map[string]entity.UemReward
}

var (
	_ datagateway.ReportDataGateway = (*Repository)(nil)
	_ datagateway.RewardDataGateway = (*Repository)(nil)
)

func NewRepository() *Repository {
	return &Repository{
		reports: make(map[string]entity.HubReport),
		rewards: make(map[string]entity.UemReward),
	}
}

func (r *Repository) GetReport(_ context.Context, hash string) (*entity.HubReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[hash]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "report %s", hash)
	}
	return &report, nil
}

func (r *Repository) SaveReport(_ context.Context, report entity.HubReport) error {
	if report.Hash == "" {
		return errors.Wrap(errs.InvalidArgument, "report hash is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[report.Hash] = report
	return nil
}

func (r *Repository) ListReportsByPeriod(_ context.Context, period entity.RewardPeriod) ([]entity.HubReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reports := lo.Filter(lo.Values(r.reports), func(report entity.HubReport, _ int) bool {
		return report.Period.Equal(period)
	})
	sort.Slice(reports, func(i, j int) bool { return reports[i].Hash < reports[j].Hash })
	return reports, nil
}

func (r *Repository) GetReward(_ context.Context, id string) (*entity.UemReward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reward, ok := r.rewards[id]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "reward %s", id)
	}
	return &reward, nil
}

func (r *Repository) SaveReward(_ context.Context, reward entity.UemReward) error {
	if reward.ID == "" {
		return errors.Wrap(errs.InvalidArgument, "reward id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rewards[reward.ID] = reward
	return nil
}
