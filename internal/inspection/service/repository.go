package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// RunRepository abstracts persistence for inspection runs, the idempotency
// ledger, and the audit trail so the state machine and services can be
// exercised against mocks.
type RunRepository interface {
	GetRunByIDInTx(ctx context.Context, tx *gorm.DB, runID uuid.UUID) (*model.InspectionRun, error)
	GetRunsByOrderIDInTx(ctx context.Context, tx *gorm.DB, orderID string) ([]model.InspectionRun, error)
	CountRunsByOrderIDInTx(ctx context.Context, tx *gorm.DB, orderID string) (int64, error)
	CreateRunsInTx(ctx context.Context, tx *gorm.DB, runs []model.InspectionRun) ([]model.InspectionRun, error)
	UpdateRunInTx(ctx context.Context, tx *gorm.DB, run *model.InspectionRun) error

	GetSubmissionByKeyInTx(ctx context.Context, tx *gorm.DB, runID uuid.UUID, stepID model.StepID, key string) (*model.SubmissionRecord, error)
	CreateSubmissionInTx(ctx context.Context, tx *gorm.DB, record *model.SubmissionRecord) error

	CreateActivityInTx(ctx context.Context, tx *gorm.DB, entry *model.InspectionActivity) error
	ListActivitiesByOrderID(ctx context.Context, orderID string, offset, limit int) ([]model.InspectionActivity, error)
	CountActivitiesByRunID(ctx context.Context, runID uuid.UUID) (int64, error)
}

// GormRunRepository is the gorm-backed RunRepository.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a repository bound to db. The db handle is
// used only for the read paths that run outside an explicit transaction.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

func (r *GormRunRepository) GetRunByIDInTx(ctx context.Context, tx *gorm.DB, runID uuid.UUID) (*model.InspectionRun, error) {
	var run model.InspectionRun
	if err := tx.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to query inspection run %s: %w", runID, err)
	}
	return &run, nil
}

func (r *GormRunRepository) GetRunsByOrderIDInTx(ctx context.Context, tx *gorm.DB, orderID string) ([]model.InspectionRun, error) {
	var runs []model.InspectionRun
	if err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to query runs for order %s: %w", orderID, err)
	}
	return runs, nil
}

func (r *GormRunRepository) CountRunsByOrderIDInTx(ctx context.Context, tx *gorm.DB, orderID string) (int64, error) {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&model.InspectionRun{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count runs for order %s: %w", orderID, err)
	}
	return count, nil
}

func (r *GormRunRepository) CreateRunsInTx(ctx context.Context, tx *gorm.DB, runs []model.InspectionRun) ([]model.InspectionRun, error) {
	if len(runs) == 0 {
		return runs, nil
	}
	if err := tx.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to create inspection runs: %w", err)
	}
	return runs, nil
}

func (r *GormRunRepository) UpdateRunInTx(ctx context.Context, tx *gorm.DB, run *model.InspectionRun) error {
	if err := tx.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to update inspection run %s: %w", run.ID, err)
	}
	return nil
}

func (r *GormRunRepository) GetSubmissionByKeyInTx(ctx context.Context, tx *gorm.DB, runID uuid.UUID, stepID model.StepID, key string) (*model.SubmissionRecord, error) {
	var record model.SubmissionRecord
	err := tx.WithContext(ctx).
		Where("run_id = ? AND step_id = ? AND idempotency_key = ?", runID, stepID, key).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query submission record: %w", err)
	}
	return &record, nil
}

func (r *GormRunRepository) CreateSubmissionInTx(ctx context.Context, tx *gorm.DB, record *model.SubmissionRecord) error {
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create submission record: %w", err)
	}
	return nil
}

func (r *GormRunRepository) CreateActivityInTx(ctx context.Context, tx *gorm.DB, entry *model.InspectionActivity) error {
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append activity entry: %w", err)
	}
	return nil
}

func (r *GormRunRepository) ListActivitiesByOrderID(ctx context.Context, orderID string, offset, limit int) ([]model.InspectionActivity, error) {
	var entries []model.InspectionActivity
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list activities for order %s: %w", orderID, err)
	}
	return entries, nil
}

func (r *GormRunRepository) CountActivitiesByRunID(ctx context.Context, runID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.InspectionActivity{}).
		Where("run_id = ?", runID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count activities for run %s: %w", runID, err)
	}
	return count, nil
}
