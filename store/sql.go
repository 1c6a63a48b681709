package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/flowengine/internal/database"
	"github.com/BaSui01/flowengine/workflow"
)

// transactionRetries bounds retries of deadlocked or locked writes.
const transactionRetries = 3

// workflowRecord mirrors the workflow_records table created by the
// embedded migrations.
type workflowRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Name       string    `gorm:"size:255;not null;index"`
	Version    int       `gorm:"not null"`
	Definition string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (workflowRecord) TableName() string { return "workflow_records" }

// executionRecord mirrors the execution_records table. Data holds the full
// execution as JSON; the other columns exist for filtering and ordering.
type executionRecord struct {
	ID         string     `gorm:"primaryKey;size:64"`
	WorkflowID string     `gorm:"size:64;not null;index"`
	Status     string     `gorm:"size:32;not null;index"`
	Data       string     `gorm:"not null"`
	StartTime  time.Time  `gorm:"index"`
	EndTime    *time.Time
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (executionRecord) TableName() string { return "execution_records" }

// SQLStore persists records through gorm on postgres, mysql or sqlite.
type SQLStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewSQLStore wraps an opened pool. With autoMigrate the tables are created
// by gorm; otherwise they are expected to exist (see internal/migration).
func NewSQLStore(pool *database.PoolManager, autoMigrate bool, logger *zap.Logger) (*SQLStore, error) {
	if pool == nil {
		return nil, errors.New("sql store requires a database pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "store"), zap.String("backend", string(TypeSQL))),
	}
	if autoMigrate {
		if err := pool.DB().AutoMigrate(&workflowRecord{}, &executionRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate record tables: %w", err)
		}
		s.logger.Debug("record tables migrated")
	}
	return s, nil
}

func (s *SQLStore) SaveWorkflow(ctx context.Context, def *workflow.Definition) error {
	c, err := stampDefinition(def)
	if err != nil {
		return err
	}

	return s.pool.WithTransactionRetry(ctx, transactionRetries, func(tx *gorm.DB) error {
		if def.CreatedAt.IsZero() {
			var prev workflowRecord
			err := tx.Select("created_at").Where("id = ?", c.ID).Take(&prev).Error
			switch {
			case err == nil:
				c.CreatedAt = prev.CreatedAt.UTC()
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("failed to load workflow %s: %w", c.ID, err)
			}
		}

		data, err := encodeWorkflow(c)
		if err != nil {
			return err
		}
		rec := workflowRecord{
			ID:         c.ID,
			Name:       c.Name,
			Version:    c.Version,
			Definition: string(data),
			CreatedAt:  c.CreatedAt.UTC(),
			UpdatedAt:  c.UpdatedAt.UTC(),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "version", "definition", "created_at", "updated_at"}),
		}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("failed to save workflow %s: %w", c.ID, err)
		}
		return nil
	})
}

func (s *SQLStore) GetWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	var rec workflowRecord
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	return decodeWorkflow([]byte(rec.Definition))
}

func (s *SQLStore) ListWorkflows(ctx context.Context) ([]*workflow.Definition, error) {
	var recs []workflowRecord
	err := s.pool.DB().WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	out := make([]*workflow.Definition, 0, len(recs))
	for _, rec := range recs {
		def, err := decodeWorkflow([]byte(rec.Definition))
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *SQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res := s.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&workflowRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	if err := checkExecution(exec); err != nil {
		return err
	}
	data, err := encodeExecution(exec)
	if err != nil {
		return err
	}
	rec := executionRecord{
		ID:         exec.ID,
		WorkflowID: exec.WorkflowID,
		Status:     string(exec.Status),
		Data:       string(data),
		StartTime:  exec.StartTime.UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if exec.EndTime != nil {
		end := exec.EndTime.UTC()
		rec.EndTime = &end
	}

	return s.pool.WithTransactionRetry(ctx, transactionRetries, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"workflow_id", "status", "data", "start_time", "end_time", "updated_at"}),
		}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("failed to save execution %s: %w", exec.ID, err)
		}
		return nil
	})
}

func (s *SQLStore) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	var rec executionRecord
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	return decodeExecution([]byte(rec.Data))
}

func (s *SQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*workflow.Execution, error) {
	q := s.pool.DB().WithContext(ctx).Model(&executionRecord{})
	if filter.WorkflowID != "" {
		q = q.Where("workflow_id = ?", filter.WorkflowID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	q = q.Order("start_time DESC").Order("id DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var recs []executionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	out := make([]*workflow.Execution, 0, len(recs))
	for _, rec := range recs {
		exec, err := decodeExecution([]byte(rec.Data))
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PoolStats exposes connection pool statistics.
func (s *SQLStore) PoolStats() database.PoolStats {
	return s.pool.GetStats()
}

func (s *SQLStore) Close() error {
	return s.pool.Close()
}
