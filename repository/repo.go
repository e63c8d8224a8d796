package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lecture-narrator/dto"
	"lecture-narrator/entities"
)

var (
	ErrNotFound = errors.New("lecture not found")
	// ErrRunSuperseded is returned by run-scoped writes when the lecture was
	// deleted or a newer run took over.
	ErrRunSuperseded = errors.New("pipeline run superseded")
)

type LectureRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	Migrate(ctx context.Context) error
	Create(ctx context.Context, lecture *entities.Lecture) error
	FindById(ctx context.Context, id uuid.UUID) (*entities.Lecture, error)
	UpdateById(ctx context.Context, id uuid.UUID, patch LecturePatch) error
	UpdateRun(ctx context.Context, id uuid.UUID, runId uuid.UUID, patch LecturePatch) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerId string, page dto.PageQuery) ([]*entities.Lecture, int64, error)
	ListPublic(ctx context.Context, page dto.PageQuery) ([]*entities.Lecture, int64, error)
}

type repo struct {
	db *gorm.DB
}

type txKey struct{}

func NewRepo(db *sql.DB, logLevel logger.LogLevel) (LectureRepository, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logLevel),
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db: gormDB,
	}, nil
}

func (r *repo) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.getDB(ctx).AutoMigrate(&entities.Lecture{})
}

func (r *repo) Create(ctx context.Context, lecture *entities.Lecture) error {
	return r.getDB(ctx).Create(lecture).Error
}

func (r *repo) FindById(ctx context.Context, id uuid.UUID) (*entities.Lecture, error) {
	lecture := &entities.Lecture{}
	err := r.getDB(ctx).First(lecture, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return lecture, nil
}

func (r *repo) UpdateById(ctx context.Context, id uuid.UUID, patch LecturePatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}

	result := r.getDB(ctx).Model(&entities.Lecture{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) UpdateRun(ctx context.Context, id uuid.UUID, runId uuid.UUID, patch LecturePatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}

	result := r.getDB(ctx).Model(&entities.Lecture{}).Where("id = ? AND run_id = ?", id, runId).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunSuperseded
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.getDB(ctx).Delete(&entities.Lecture{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) ListByOwner(ctx context.Context, ownerId string, page dto.PageQuery) ([]*entities.Lecture, int64, error) {
	return r.list(ctx, r.getDB(ctx).Where("owner_id = ?", ownerId), page)
}

func (r *repo) ListPublic(ctx context.Context, page dto.PageQuery) ([]*entities.Lecture, int64, error) {
	return r.list(ctx, r.getDB(ctx).Where("is_public = ?", true), page)
}

func (r *repo) list(ctx context.Context, query *gorm.DB, page dto.PageQuery) ([]*entities.Lecture, int64, error) {
	page = page.Normalize()

	var total int64
	if err := query.Session(&gorm.Session{}).Model(&entities.Lecture{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var lectures []*entities.Lecture
	err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&lectures).Error
	if err != nil {
		return nil, 0, err
	}
	return lectures, total, nil
}
