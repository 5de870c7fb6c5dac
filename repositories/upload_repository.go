package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/imgdrop/models"
)

// ErrUploadNotFound is returned by DeleteByID when no record was removed, for
// example because a concurrent delete got there first.
var ErrUploadNotFound = errors.New("upload not found")

// UploadRepository is the metadata store for uploads.
type UploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// WindowUsage is what one origin uploaded inside a rate-limit window.
type WindowUsage struct {
	Count int64
	Bytes int64
}

// Totals is the aggregate served by the public stats endpoint.
type Totals struct {
	Uploads      int64 `json:"uploads"`
	Bytes        int64 `json:"bytes"`
	UploadsToday int64 `json:"uploads_today"`
	Views        int64 `json:"views"`
}

// Insert persists a new record. Unique-key violations on slug or token surface as errors.
func (r *UploadRepository) Insert(ctx context.Context, u *models.Upload) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to insert upload %s: %w", u.Slug, err)
	}
	return nil
}

// BumpAccess increments the view counter of a still visible record.
func (r *UploadRepository) BumpAccess(ctx context.Context, slug string, now time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Upload{}).
		Where("slug = ? AND (expires_at IS NULL OR expires_at > ?)", slug, now).
		UpdateColumns(map[string]interface{}{
			"view_count":       gorm.Expr("view_count + 1"),
			"last_accessed_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to bump access for %s: %w", slug, err)
	}
	return nil
}

// FindVisible returns the record for slug if it has not expired at now, or nil.
func (r *UploadRepository) FindVisible(ctx context.Context, slug string, now time.Time) (*models.Upload, error) {
	var u models.Upload
	err := r.db.WithContext(ctx).
		Where("slug = ? AND (expires_at IS NULL OR expires_at > ?)", slug, now).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find upload %s: %w", slug, err)
	}
	return &u, nil
}

// FindByToken returns the record owning token regardless of expiry, or nil.
func (r *UploadRepository) FindByToken(ctx context.Context, token string) (*models.Upload, error) {
	var u models.Upload
	err := r.db.WithContext(ctx).Where("delete_token = ?", token).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find upload by token: %w", err)
	}
	return &u, nil
}

// DeleteByID removes one record. It returns ErrUploadNotFound when the row is already gone.
func (r *UploadRepository) DeleteByID(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Upload{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete upload %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete upload %d: %w", id, ErrUploadNotFound)
	}
	return nil
}

// WindowUsage counts the uploads of ip created after since and sums their sizes.
func (r *UploadRepository) WindowUsage(ctx context.Context, ip string, since time.Time) (WindowUsage, error) {
	var usage WindowUsage
	err := r.db.WithContext(ctx).Model(&models.Upload{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size_bytes),0) AS bytes").
		Where("origin_ip = ? AND created_at > ?", ip, since).
		Scan(&usage).Error
	if err != nil {
		return WindowUsage{}, fmt.Errorf("failed to query upload window for %s: %w", ip, err)
	}
	return usage, nil
}

// ListExpired returns up to limit records whose expiry passed before now, oldest first.
func (r *UploadRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Upload, error) {
	var out []models.Upload
	err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired uploads: %w", err)
	}
	return out, nil
}

// Totals aggregates the visible uploads. Counting falls back to zero on error so the
// stats endpoint never fails as a whole.
func (r *UploadRepository) Totals(ctx context.Context, now time.Time) Totals {
	var t Totals
	visible := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Upload{}).
			Where("expires_at IS NULL OR expires_at > ?", now)
	}

	var agg struct {
		Uploads int64
		Bytes   int64
		Views   int64
	}
	if err := visible().
		Select("COUNT(*) AS uploads, COALESCE(SUM(size_bytes),0) AS bytes, COALESCE(SUM(view_count),0) AS views").
		Scan(&agg).Error; err == nil {
		t.Uploads, t.Bytes, t.Views = agg.Uploads, agg.Bytes, agg.Views
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := visible().Where("created_at >= ?", midnight).Count(&t.UploadsToday).Error; err != nil {
		t.UploadsToday = 0
	}
	return t
}
