package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrRunNotFound       = errors.New("run not found")
	ErrUnsupportedDriver = errors.New("unsupported history driver")
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	defaultPageSize = 20
	maxPageSize     = 100
)

// Run is one program run as recorded in the history store.
type Run struct {
	Seq          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	ID           string    `gorm:"uniqueIndex;size:36" json:"id"`
	SessionID    string    `gorm:"index;size:64" json:"session_id"`
	Program      string    `gorm:"size:128" json:"program"`
	World        string    `gorm:"size:128" json:"world"`
	State        string    `gorm:"size:16" json:"state"`
	Kind         string    `gorm:"size:32" json:"kind,omitempty"`
	Message      string    `json:"message,omitempty"`
	Instructions int       `json:"instructions"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Duration is how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Query selects a page of runs.
type Query struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// Page is a page of runs with pagination details.
type Page struct {
	Runs        []Run `json:"runs"`
	TotalRuns   int   `json:"total_runs"`
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// Store records runs through gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the history database and migrates it. driver is "sqlite"
// (dsn is a file path or a sqlite URI) or "mysql".
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to history database: %w", err)
	}
	if driver != DriverMySQL {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("history database handle: %w", err)
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, logger)
}

// New wraps an open gorm connection and migrates the runs table.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	logger.Info("history store ready", zap.String("dialect", db.Dialector.Name()))
	return &Store{db: db, logger: logger}, nil
}

// Record stores run, assigning it an ID when it has none.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	s.logger.Debug("run recorded",
		zap.String("run_id", run.ID),
		zap.String("session_id", run.SessionID),
		zap.String("state", run.State),
	)
	return nil
}

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}
	return &run, nil
}

// List returns a page of the runs of a session. Newest first unless
// q.Order is "asc".
func (s *Store) List(ctx context.Context, sessionID string, q Query) (*Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	order := "seq DESC"
	if q.Order == "asc" {
		order = "seq ASC"
	}

	base := s.db.WithContext(ctx).Model(&Run{}).Where("session_id = ?", sessionID)
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	runs := []Run{}
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order(order).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	totalPages := (int(total) + q.Limit - 1) / q.Limit
	if totalPages == 0 {
		totalPages = 1
	}
	return &Page{
		Runs:        runs,
		TotalRuns:   int(total),
		Page:        q.Page,
		PageSize:    q.Limit,
		TotalPages:  totalPages,
		HasNext:     q.Page < totalPages,
		HasPrevious: q.Page > 1,
	}, nil
}

// DeleteSession removes every run of a session and reports how many were
// removed.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&Run{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
