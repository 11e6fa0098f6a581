package rewards_test

import (
	"context"
	"testing"
	"time"

	rentingentity "github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	rentingmemory "github.com/Meeds-io/deeds-dapp-sub003/modules/renting/repository/memory"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
	rewardsmemory "github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/repository/memory"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine  *rewards.Engine
	reports *rewardsmemory.Repository
	leases  *rentingmemory.Repository
	bus     *event.Bus
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	bus := event.NewBus(nil)
	t.Cleanup(bus.Stop)

	reports := rewardsmemory.NewRepository()
	leases := rentingmemory.NewRepository()
	engine := rewards.NewEngine(reports, reports, leases, bus)
	engine.Start()
	t.Cleanup(engine.Stop)

	return &engineFixture{engine: engine, reports: reports, leases: leases, bus: bus}
}

func testReport(hash string, sentDate time.Time) entity.HubReport {
	return entity.HubReport{
		Hash:              hash,
		HubAddress:        "0x1f9090aae28b8a3dceadf281b0f12828e676c326",
		NftID:             7,
		SentDate:          sentDate,
		UsersCount:        120,
		ParticipantsCount: 80,
		RecipientsCount:   60,
		AchievementsCount: 340,
		HubRewardAmount:   decimal.NewFromInt(25),
	}
}

func TestEngineIngestsSavedReport(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	sentDate := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)

	f.bus.Publish(ctx, rewards.HubReportSavedEvent{Report: testReport("0xreport1", sentDate)})

	report, err := f.engine.GetReport(ctx, "0xreport1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, report.Status)
	assert.True(t, report.Period.Equal(rewards.PeriodOf(sentDate)))
	assert.True(t, report.Period.Contains(sentDate))
}

func TestEngineMarksMalformedReportInvalid(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	malformed := testReport("0xreport2", time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC))
	malformed.HubAddress = ""
	f.bus.Publish(ctx, rewards.HubReportSavedEvent{Report: malformed})

	report, err := f.engine.GetReport(ctx, "0xreport2")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInvalid, report.Status)
	assert.NotEmpty(t, report.Error)
}

func TestEngineRewardsReceivedReport(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	sentDate := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)

	require.NoError(t, f.leases.SaveLease(ctx, rentingentity.Lease{
		ID:                     42,
		NftID:                  7,
		Owner:                  "0xaaa0000000000000000000000000000000000aaa",
		Manager:                "0xbbb0000000000000000000000000000000000bbb",
		OwnerMintingPercentage: 60,
		Confirmed:              true,
		Enabled:                true,
	}))

	f.bus.Publish(ctx, rewards.HubReportSavedEvent{Report: testReport("0xreport3", sentDate)})
	f.bus.Publish(ctx, rewards.HubReportReceivedEvent{ReportHash: "0xreport3"})

	report, err := f.engine.GetReport(ctx, "0xreport3")
	require.NoError(t, err)

	// Reward computation settles the pending report in the same publish chain.
	assert.Equal(t, entity.StatusRewarded, report.Status)
	assert.Equal(t, "0xaaa0000000000000000000000000000000000aaa", report.OwnerAddress)
	assert.Equal(t, "0xbbb0000000000000000000000000000000000bbb", report.ManagerAddress)
	assert.Equal(t, 60, report.OwnerMintingPercentage)
	assert.True(t, decimal.NewFromInt(25).Equal(report.RewardPayment))

	reward, err := f.engine.GetReward(ctx, report.Period)
	require.NoError(t, err)
	assert.Equal(t, 1, reward.HubsCount)
	assert.Equal(t, int64(340), reward.AchievementsCount)
	assert.True(t, decimal.NewFromInt(25).Equal(reward.Amount))
	assert.Equal(t, []string{"0xreport3"}, reward.ReportHashes)
}

func TestEngineRewardComputationConverges(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	sentDate := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)

	f.bus.Publish(ctx, rewards.HubReportSavedEvent{Report: testReport("0xreport4", sentDate)})
	other := testReport("0xreport5", sentDate)
	other.HubRewardAmount = decimal.NewFromInt(15)
	other.AchievementsCount = 100
	f.bus.Publish(ctx, rewards.HubReportSavedEvent{Report: other})

	f.bus.Publish(ctx, rewards.HubReportReceivedEvent{ReportHash: "0xreport4"})
	f.bus.Publish(ctx, rewards.HubReportReceivedEvent{ReportHash: "0xreport5"})

	period := rewards.PeriodOf(sentDate)
	reward, err := f.engine.GetReward(ctx, period)
	require.NoError(t, err)
	require.Equal(t, 2, reward.HubsCount)

	// Recomputing the same period repeatedly converges to the same totals.
	for i := 0; i < 3; i++ {
		require.NoError(t, f.engine.ComputeRewards(ctx, period))
	}
	recomputed, err := f.engine.GetReward(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, reward.HubsCount, recomputed.HubsCount)
	assert.Equal(t, reward.AchievementsCount, recomputed.AchievementsCount)
	assert.True(t, reward.Amount.Equal(recomputed.Amount))
	assert.Equal(t, reward.ReportHashes, recomputed.ReportHashes)
	assert.True(t, decimal.NewFromInt(40).Equal(recomputed.Amount))
}

func TestEngineTerminalTransitions(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	sentDate := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)

	f.bus.Publish(ctx, rewards.HubReportSavedEvent{Report: testReport("0xreport6", sentDate)})

	report, err := f.engine.MarkSendingError(ctx, "0xreport6", "network unreachable")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusErrorSending, report.Status)
	assert.Equal(t, "network unreachable", report.Error)

	// ERROR_SENDING is terminal.
	_, err = f.engine.RejectReport(ctx, "0xreport6", "rejected afterwards")
	require.Error(t, err)
}
