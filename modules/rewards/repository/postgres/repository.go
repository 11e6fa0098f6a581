package postgres

import (
	"context"
	"encoding/json"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/internal/postgres"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/entity"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// Repository stores Hub reports and period rewards as JSONB documents, with
// the period key indexed for aggregation queries.
type Repository struct {
	db postgres.DB
}

var (
	_ datagateway.ReportDataGateway = (*Repository)(nil)
	_ datagateway.RewardDataGateway = (*Repository)(nil)
)

func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS uem_reports (
	hash TEXT PRIMARY KEY,
	period_key TEXT NOT NULL,
	status TEXT NOT NULL,
	document JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS uem_reports_period_idx ON uem_reports (period_key, hash);

CREATE TABLE IF NOT EXISTS uem_rewards (
	id TEXT PRIMARY KEY,
	document JSONB NOT NULL
);
`

// CreateSchema creates the repository tables when they do not exist yet.
func (r *Repository) CreateSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create rewards schema")
	}
	return nil
}

func (r *Repository) GetReport(ctx context.Context, hash string) (*entity.HubReport, error) {
	var document []byte
	err := r.db.QueryRow(ctx, `SELECT document FROM uem_reports WHERE hash = $1`, hash).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.NotFound, "report %s", hash)
		}
		return nil, errors.Wrap(err, "failed to get report")
	}
	return unmarshalReport(document)
}

func (r *Repository) SaveReport(ctx context.Context, report entity.HubReport) error {
	if report.Hash == "" {
		return errors.Wrap(errs.InvalidArgument, "report hash is required")
	}
	document, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report document")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO uem_reports (hash, period_key, status, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET
			period_key = EXCLUDED.period_key,
			status = EXCLUDED.status,
			document = EXCLUDED.document`,
		report.Hash, report.Period.Key(), string(report.Status), document,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save report")
	}
	return nil
}

func (r *Repository) ListReportsByPeriod(ctx context.Context, period entity.RewardPeriod) ([]entity.HubReport, error) {
	rows, err := r.db.Query(ctx, `
		SELECT document FROM uem_reports
		WHERE period_key = $1
		ORDER BY hash ASC`, period.Key())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports by period")
	}
	defer rows.Close()

	var reports []entity.HubReport
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, errors.Wrap(err, "failed to scan report row")
		}
		report, err := unmarshalReport(document)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate report rows")
	}
	return reports, nil
}

func (r *Repository) GetReward(ctx context.Context, id string) (*entity.UemReward, error) {
	var document []byte
	err := r.db.QueryRow(ctx, `SELECT document FROM uem_rewards WHERE id = $1`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.NotFound, "reward %s", id)
		}
		return nil, errors.Wrap(err, "failed to get reward")
	}
	var reward entity.UemReward
	if err := json.Unmarshal(document, &reward); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal reward document")
	}
	return &reward, nil
}

func (r *Repository) SaveReward(ctx context.Context, reward entity.UemReward) error {
	if reward.ID == "" {
		return errors.Wrap(errs.InvalidArgument, "reward id is required")
	}
	document, err := json.Marshal(reward)
	if err != nil {
		return errors.Wrap(err, "failed to marshal reward document")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO uem_rewards (id, document) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document`,
		reward.ID, document,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save reward")
	}
	return nil
}

func unmarshalReport(document []byte) (*entity.HubReport, error) {
	var report entity.HubReport
	if err := json.Unmarshal(document, &report); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal report document")
	}
	return &report, nil
}
