// Package mysql 回测服务 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
	pkgdb "github.com/wyfcoding/stockbacktest/pkg/db"
)

// claimRetries 认领竞争失败时的重试次数
const claimRetries = 3

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository 创建任务仓储
func NewJobRepository(db *gorm.DB) domain.JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Save(ctx context.Context, job *domain.BacktestJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *jobRepository) FindByJobID(ctx context.Context, jobID string) (*domain.BacktestJob, error) {
	var job domain.BacktestJob
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNextPending 乐观认领：先按优先级选出候选，再以条件更新抢占。
// 多实例并发下同一任务至多被一个调度器认领成功。
func (r *jobRepository) ClaimNextPending(ctx context.Context) (*domain.BacktestJob, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		var job domain.BacktestJob
		err := r.db.WithContext(ctx).
			Where("status = ?", domain.JobStatusPending).
			Order("priority DESC, id ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res := r.db.WithContext(ctx).
			Model(&domain.BacktestJob{}).
			Where("id = ? AND status = ?", job.ID, domain.JobStatusPending).
			Update("status", domain.JobStatusQueued)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = domain.JobStatusQueued
			return &job, nil
		}
		// 被其他实例抢先，换下一个候选
	}
	return nil, nil
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository 创建结果仓储
func NewResultRepository(db *gorm.DB) domain.ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) Save(ctx context.Context, result *domain.BacktestResult) error {
	return r.db.WithContext(ctx).Save(result).Error
}

func (r *resultRepository) ListByJobID(ctx context.Context, jobID string) ([]*domain.BacktestResult, error) {
	var results []*domain.BacktestResult
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

type combinationWriter struct {
	db *pkgdb.DB
}

// NewCombinationWriter 创建组合结果写入器，结果行与任务计数在同一事务中提交
func NewCombinationWriter(database *pkgdb.DB) domain.CombinationWriter {
	return &combinationWriter{db: database}
}

func (w *combinationWriter) SaveCombination(ctx context.Context, result *domain.BacktestResult, job *domain.BacktestJob) error {
	return w.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Save(result).Error; err != nil {
			return err
		}
		return tx.Save(job).Error
	})
}

type strategyRepository struct {
	db *gorm.DB
}

// NewStrategyRepository 创建策略定义仓储
func NewStrategyRepository(db *gorm.DB) domain.StrategyRepository {
	return &strategyRepository{db: db}
}

func (r *strategyRepository) Save(ctx context.Context, def *domain.StrategyDefinition) error {
	return r.db.WithContext(ctx).Save(def).Error
}

func (r *strategyRepository) FindByStrategyID(ctx context.Context, strategyID string) (*domain.StrategyDefinition, error) {
	var def domain.StrategyDefinition
	err := r.db.WithContext(ctx).Where("strategy_id = ?", strategyID).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *strategyRepository) FindByStrategyIDs(ctx context.Context, strategyIDs []string) (map[string]*domain.StrategyDefinition, error) {
	if len(strategyIDs) == 0 {
		return map[string]*domain.StrategyDefinition{}, nil
	}

	var defs []*domain.StrategyDefinition
	err := r.db.WithContext(ctx).Where("strategy_id IN ?", strategyIDs).Find(&defs).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]*domain.StrategyDefinition, len(defs))
	for _, def := range defs {
		out[def.StrategyID] = def
	}
	return out, nil
}
