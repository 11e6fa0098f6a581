package rewards

import (
	"context"
	"sort"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	rentingdg "github.com/Meeds-io/deeds-dapp-sub003/modules/renting/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger/slogx"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Engine drives Hub reports through the reward status machine and computes
// per-period reward aggregates. It is event-driven: the report-submission
// pipeline publishes report events on the bus and the engine reacts. All
// handlers are idempotent since bus delivery is at-least-once.
type Engine struct {
	reports datagateway.ReportDataGateway
	rewards datagateway.RewardDataGateway
	leases  rentingdg.LeaseDataGateway
	bus     *event.Bus
	now     func() time.Time

	subscriptions []subscription
}

type subscription struct {
	eventType event.Type
	id        event.SubscriberID
}

func NewEngine(
	reports datagateway.ReportDataGateway,
	rewards datagateway.RewardDataGateway,
	leases rentingdg.LeaseDataGateway,
	bus *event.Bus,
) *Engine {
	return &Engine{
		reports: reports,
		rewards: rewards,
		leases:  leases,
		bus:     bus,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start subscribes the engine to the report pipeline events.
func (e *Engine) Start() {
	e.track(EventHubReportSaved, event.Subscribe(e.bus, e.onReportSaved))
	e.track(EventHubReportReceived, event.Subscribe(e.bus, e.onReportReceived))
	e.track(EventUemConfigurationSaved, event.Subscribe(e.bus, e.onConfigurationSaved))
	e.track(EventHubReportRewardComputed, event.Subscribe(e.bus, e.onReportRewardComputed))
}

// Stop removes the engine's subscriptions.
func (e *Engine) Stop() {
	for _, sub := range e.subscriptions {
		e.bus.Unsubscribe(sub.eventType, sub.id)
	}
	e.subscriptions = nil
}

func (e *Engine) track(eventType event.Type, id event.SubscriberID) {
	e.subscriptions = append(e.subscriptions, subscription{eventType: eventType, id: id})
}

// onReportSaved stores the submitted report as SENT, or INVALID when the
// submission is malformed. The report is attributed to the period containing
// its sent date.
func (e *Engine) onReportSaved(ctx context.Context, evt HubReportSavedEvent) {
	report := evt.Report
	if existing, err := e.reports.GetReport(ctx, report.Hash); err == nil {
		// Duplicate delivery of an already ingested report.
		logger.DebugContext(ctx, "Report already ingested, ignoring",
			slogx.String("report_hash", existing.Hash))
		return
	} else if !errors.Is(err, errs.NotFound) {
		logger.ErrorContext(ctx, "Failed to look up report", slogx.Error(err))
		return
	}

	report.Status = entity.StatusNone
	report.Period = PeriodOf(report.SentDate)
	report.UpdatedDate = e.now()

	if err := validateReport(report); err != nil {
		report.Status = entity.StatusInvalid
		report.Error = err.Error()
	} else if err := transition(&report, entity.StatusSent); err != nil {
		logger.ErrorContext(ctx, "Failed to mark report sent", slogx.Error(err))
		return
	}

	if err := e.reports.SaveReport(ctx, report); err != nil {
		logger.ErrorContext(ctx, "Failed to save report",
			slogx.String("report_hash", report.Hash), slogx.Error(err))
		return
	}
	logger.InfoContext(ctx, "Hub report ingested",
		slogx.String("report_hash", report.Hash),
		slogx.String("status", string(report.Status)),
		slogx.String("period", report.Period.Key()))
}

// onReportReceived decorates the report with the Deed's confirmed lease
// snapshot, moves it to PENDING_REWARD and recomputes the period. Reward
// computation always runs, even when the report was already decorated.
func (e *Engine) onReportReceived(ctx context.Context, evt HubReportReceivedEvent) {
	report, err := e.reports.GetReport(ctx, evt.ReportHash)
	if err != nil {
		logger.ErrorContext(ctx, "Received acknowledgment for unknown report",
			slogx.String("report_hash", evt.ReportHash), slogx.Error(err))
		return
	}

	e.decorateWithLease(ctx, report)

	if report.Status == entity.StatusSent {
		if err := transition(report, entity.StatusPendingReward); err != nil {
			logger.ErrorContext(ctx, "Failed to mark report pending reward", slogx.Error(err))
			return
		}
	}
	report.UpdatedDate = e.now()
	if err := e.reports.SaveReport(ctx, *report); err != nil {
		logger.ErrorContext(ctx, "Failed to save received report",
			slogx.String("report_hash", report.Hash), slogx.Error(err))
		return
	}

	if err := e.ComputeRewards(ctx, report.Period); err != nil {
		logger.ErrorContext(ctx, "Failed to compute rewards",
			slogx.String("period", report.Period.Key()), slogx.Error(err))
	}
}

// onConfigurationSaved recomputes the current period with the new settings.
func (e *Engine) onConfigurationSaved(ctx context.Context, _ UemConfigurationSavedEvent) {
	period := CurrentPeriod(e.now())
	if err := e.ComputeRewards(ctx, period); err != nil {
		logger.ErrorContext(ctx, "Failed to recompute current period",
			slogx.String("period", period.Key()), slogx.Error(err))
	}
}

// onReportRewardComputed settles a report's payment and moves it to REWARDED.
func (e *Engine) onReportRewardComputed(ctx context.Context, evt HubReportRewardComputedEvent) {
	report, err := e.reports.GetReport(ctx, evt.ReportHash)
	if err != nil {
		logger.ErrorContext(ctx, "Reward computed for unknown report",
			slogx.String("report_hash", evt.ReportHash), slogx.Error(err))
		return
	}
	if report.Status == entity.StatusRewarded {
		return
	}
	if err := transition(report, entity.StatusRewarded); err != nil {
		logger.WarnContext(ctx, "Report cannot be rewarded",
			slogx.String("report_hash", report.Hash),
			slogx.String("status", string(report.Status)),
			slogx.Error(err))
		return
	}
	report.RewardID = evt.RewardID
	report.RewardPayment = evt.Payment
	report.UpdatedDate = e.now()
	if err := e.reports.SaveReport(ctx, *report); err != nil {
		logger.ErrorContext(ctx, "Failed to save rewarded report",
			slogx.String("report_hash", report.Hash), slogx.Error(err))
	}
}

// decorateWithLease copies the Deed's confirmed lease ownership snapshot onto
// the report, when one exists.
func (e *Engine) decorateWithLease(ctx context.Context, report *entity.HubReport) {
	leases, err := e.leases.ListLeasesByNftID(ctx, report.NftID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load leases for report decoration",
			slogx.Int64("nft_id", report.NftID), slogx.Error(err))
		return
	}
	for _, lease := range leases {
		if !lease.Confirmed || !lease.Enabled {
			continue
		}
		report.OwnerAddress = lease.Owner
		report.ManagerAddress = lease.Manager
		report.OwnerMintingPercentage = lease.OwnerMintingPercentage
		report.City = lease.City
		report.CardType = lease.CardType
		return
	}
}

// ComputeRewards recomputes the period's aggregate from its eligible reports.
// The computation is keyed by the period, so repeated invocations converge to
// the same totals. Reports newly entering the aggregate get their payment
// settled through a HubReportRewardComputedEvent.
func (e *Engine) ComputeRewards(ctx context.Context, period entity.RewardPeriod) error {
	reports, err := e.reports.ListReportsByPeriod(ctx, period)
	if err != nil {
		return err
	}

	reward := entity.UemReward{
		ID:           period.Key(),
		Period:       period,
		Amount:       decimal.Zero,
		ComputedDate: e.now(),
	}
	var pending []entity.HubReport
	for _, report := range reports {
		switch report.Status {
		case entity.StatusPendingReward, entity.StatusRewarded:
		default:
			continue
		}
		reward.ReportHashes = append(reward.ReportHashes, report.Hash)
		reward.HubsCount++
		reward.AchievementsCount += report.AchievementsCount
		reward.Amount = reward.Amount.Add(report.HubRewardAmount)
		if report.Status == entity.StatusPendingReward {
			pending = append(pending, report)
		}
	}
	sort.Strings(reward.ReportHashes)

	if err := e.rewards.SaveReward(ctx, reward); err != nil {
		return err
	}
	e.bus.Publish(ctx, UemRewardComputedEvent{Reward: reward})

	for _, report := range pending {
		e.bus.Publish(ctx, HubReportRewardComputedEvent{
			ReportHash: report.Hash,
			RewardID:   reward.ID,
			Payment:    report.HubRewardAmount,
		})
	}

	logger.InfoContext(ctx, "Period rewards computed",
		slogx.String("period", period.Key()),
		slogx.Int("hubs", reward.HubsCount),
		slogx.String("amount", reward.Amount.String()))
	return nil
}

// MarkSendingError records that the report could not reach the reward
// network.
func (e *Engine) MarkSendingError(ctx context.Context, hash, message string) (*entity.HubReport, error) {
	return e.terminate(ctx, hash, entity.StatusErrorSending, message)
}

// RejectReport records the reward network's rejection of the report.
func (e *Engine) RejectReport(ctx context.Context, hash, message string) (*entity.HubReport, error) {
	return e.terminate(ctx, hash, entity.StatusRejected, message)
}

func (e *Engine) terminate(ctx context.Context, hash string, status entity.HubReportStatusType, message string) (*entity.HubReport, error) {
	report, err := e.reports.GetReport(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := transition(report, status); err != nil {
		return nil, err
	}
	report.Error = message
	report.UpdatedDate = e.now()
	if err := e.reports.SaveReport(ctx, *report); err != nil {
		return nil, err
	}
	return report, nil
}

// GetReport returns the report with the given content hash.
func (e *Engine) GetReport(ctx context.Context, hash string) (*entity.HubReport, error) {
	return e.reports.GetReport(ctx, hash)
}

// GetReward returns the period's reward aggregate.
func (e *Engine) GetReward(ctx context.Context, period entity.RewardPeriod) (*entity.UemReward, error) {
	return e.rewards.GetReward(ctx, period.Key())
}

func validateReport(report entity.HubReport) error {
	switch {
	case report.Hash == "":
		return errors.Wrap(errs.InvalidArgument, "report hash is required")
	case report.HubAddress == "":
		return errors.Wrap(errs.InvalidArgument, "hub address is required")
	case report.NftID <= 0:
		return errors.Wrap(errs.InvalidArgument, "nft id is required")
	case report.SentDate.IsZero():
		return errors.Wrap(errs.InvalidArgument, "sent date is required")
	case report.HubRewardAmount.IsNegative():
		return errors.Wrap(errs.InvalidArgument, "hub reward amount must not be negative")
	}
	return nil
}
