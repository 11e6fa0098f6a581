package rewards

import (
	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
	"github.com/cockroachdb/errors"
)

// statusTransitions is the complete report status machine. INVALID, REWARDED,
// REJECTED and ERROR_SENDING are terminal.
var statusTransitions = map[entity.HubReportStatusType][]entity.HubReportStatusType{
	entity.StatusNone:          {entity.StatusInvalid, entity.StatusSent},
	entity.StatusSent:          {entity.StatusPendingReward, entity.StatusErrorSending, entity.StatusRejected},
	entity.StatusPendingReward: {entity.StatusRewarded},
}

// CanTransition reports whether the status machine allows moving a report
// from one status to the other.
func CanTransition(from, to entity.HubReportStatusType) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition validates and applies a status change on the report.
func transition(report *entity.HubReport, to entity.HubReportStatusType) error {
	if report.Status == to {
		return nil
	}
	if !CanTransition(report.Status, to) {
		return errors.Wrapf(errs.Conflict, "report %s cannot move from %s to %s", report.Hash, report.Status, to)
	}
	report.Status = to
	return nil
}
