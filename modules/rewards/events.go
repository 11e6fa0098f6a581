package rewards

import (
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
	"github.com/shopspring/decimal"
)

// Bus event types consumed and produced by the reward engine. The first three
// arrive from the report-submission pipeline; the computed events are
// published by the engine itself.
const (
	EventHubReportSaved          event.Type = "uem.event.hubReportSaved"
	EventHubReportReceived       event.Type = "uem.event.hubReportReceived"
	EventUemConfigurationSaved   event.Type = "uem.event.configurationSaved"
	EventHubReportRewardComputed event.Type = "uem.event.hubReportRewardComputed"
	EventUemRewardComputed       event.Type = "uem.event.rewardComputed"
)

// HubReportSavedEvent fires when a Hub submits a new report locally.
type HubReportSavedEvent struct{ Report entity.HubReport }

func (HubReportSavedEvent) EventType() event.Type { return EventHubReportSaved }

// HubReportReceivedEvent fires when the reward network acknowledges a sent
// report.
type HubReportReceivedEvent struct{ ReportHash string }

func (HubReportReceivedEvent) EventType() event.Type { return EventHubReportReceived }

// UemConfigurationSavedEvent fires when reward configuration changes,
// requiring the current period to be recomputed.
type UemConfigurationSavedEvent struct{}

func (UemConfigurationSavedEvent) EventType() event.Type { return EventUemConfigurationSaved }

// HubReportRewardComputedEvent fires for each report included in a period
// computation, carrying its payment share.
type HubReportRewardComputedEvent struct {
	ReportHash string
	RewardID   string
	Payment    decimal.Decimal
}

func (HubReportRewardComputedEvent) EventType() event.Type { return EventHubReportRewardComputed }

// UemRewardComputedEvent fires when a period's aggregate is (re)computed.
type UemRewardComputedEvent struct{ Reward entity.UemReward }

func (UemRewardComputedEvent) EventType() event.Type { return EventUemRewardComputed }
