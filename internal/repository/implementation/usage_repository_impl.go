package implementation

import (
	"context"
	"sort"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/model"
	"ai-genbot-gateway/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsageRepositoryImpl struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) contract.UsageRepository {
	return &UsageRepositoryImpl{db: db}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *UsageRepositoryImpl) ApplyFlush(ctx context.Context, flush *entity.MetricsFlush) (bool, error) {
	db := r.db.WithContext(ctx)

	ledger := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.MetricFlush{FlushId: flush.ID, AppliedAt: time.Now().UTC()})
	if ledger.Error != nil {
		return false, ledger.Error
	}
	if ledger.RowsAffected == 0 {
		return false, nil
	}

	if len(flush.Commands) > 0 {
		rows := make([]model.CommandUsage, 0, len(flush.Commands))
		for _, k := range sortedKeys(flush.Commands) {
			rows = append(rows, model.CommandUsage{Command: k, Count: flush.Commands[k]})
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "command"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("command_usage.count + excluded.count")}),
		}).Create(&rows).Error; err != nil {
			return false, err
		}
	}

	if len(flush.Models) > 0 {
		rows := make([]model.ModelUsage, 0, len(flush.Models))
		for _, k := range sortedKeys(flush.Models) {
			rows = append(rows, model.ModelUsage{Model: k, Count: flush.Models[k]})
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "model"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("model_usage.count + excluded.count")}),
		}).Create(&rows).Error; err != nil {
			return false, err
		}
	}

	if len(flush.Errors) > 0 {
		rows := make([]model.ErrorCount, 0, len(flush.Errors))
		for _, k := range sortedKeys(flush.Errors) {
			rows = append(rows, model.ErrorCount{Kind: k, Count: flush.Errors[k]})
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("errors.count + excluded.count")}),
		}).Create(&rows).Error; err != nil {
			return false, err
		}
	}

	if w := flush.Window; w != nil && w.Samples > 0 {
		row := model.ResponseTime{
			Id:          uuid.New(),
			FlushId:     flush.ID,
			WindowStart: w.Start.UTC(),
			WindowEnd:   w.End.UTC(),
			Samples:     w.Samples,
			Avg:         w.Avg,
			Min:         w.Min,
			Max:         w.Max,
		}
		if err := db.Create(&row).Error; err != nil {
			return false, err
		}
	}

	return true, nil
}

func (r *UsageRepositoryImpl) Totals(ctx context.Context, windows int) (*entity.UsageTotals, error) {
	db := r.db.WithContext(ctx)
	out := &entity.UsageTotals{
		Commands: map[string]int64{},
		Models:   map[string]int64{},
		Errors:   map[string]int64{},
	}

	var commands []model.CommandUsage
	if err := db.Find(&commands).Error; err != nil {
		return nil, err
	}
	for _, c := range commands {
		out.Commands[c.Command] = c.Count
	}

	var models []model.ModelUsage
	if err := db.Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		out.Models[m.Model] = m.Count
	}

	var errs []model.ErrorCount
	if err := db.Find(&errs).Error; err != nil {
		return nil, err
	}
	for _, e := range errs {
		out.Errors[e.Kind] = e.Count
	}

	if windows > 0 {
		var rows []model.ResponseTime
		if err := db.Order("window_start DESC").Limit(windows).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out.Windows = append(out.Windows, entity.ResponseWindow{
				Start:   row.WindowStart,
				End:     row.WindowEnd,
				Samples: row.Samples,
				Avg:     row.Avg,
				Min:     row.Min,
				Max:     row.Max,
			})
		}
	}
	return out, nil
}
