package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cppla/imgdrop/metrics"
	"github.com/cppla/imgdrop/models"
	"github.com/cppla/imgdrop/repositories"
	"github.com/cppla/imgdrop/utils"
)

const (
	maxSlugKeyLen  = 64
	maxTokenKeyLen = 128
	reapBatchSize  = 100
)

// MetadataStore is the relational store behind uploads.
type MetadataStore interface {
	Insert(ctx context.Context, u *models.Upload) error
	BumpAccess(ctx context.Context, slug string, now time.Time) error
	FindVisible(ctx context.Context, slug string, now time.Time) (*models.Upload, error)
	FindByToken(ctx context.Context, token string) (*models.Upload, error)
	DeleteByID(ctx context.Context, id uint) error
	WindowUsage(ctx context.Context, ip string, since time.Time) (repositories.WindowUsage, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Upload, error)
}

// FileStore places and removes stored objects under the media root.
type FileStore interface {
	Place(kind, slug, ext string, createdAt time.Time, body io.Reader) (string, int64, error)
	Remove(storedPath string) error
	Open(storedPath string) (afero.File, error)
}

// AdmissionGate is an optional hard per-origin limit consulted after the advisory check.
type AdmissionGate interface {
	Reserve(ctx context.Context, ip string) (release func(), ok bool)
}

// IngestResult is returned once per successful upload. DeleteToken is never retrievable again.
type IngestResult struct {
	Slug        string
	DeleteToken string
	ExpiresAt   *time.Time
}

var expiryChoices = map[string]time.Duration{
	"10m": 10 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// ResolveExpiry maps an expiry choice to an instant. "keep" and anything unrecognised
// mean the upload never expires.
func ResolveExpiry(choice string, now time.Time) *time.Time {
	d, ok := expiryChoices[strings.ToLower(strings.TrimSpace(choice))]
	if !ok {
		return nil
	}
	t := now.Add(d)
	return &t
}

// UploadService runs ingest, fetch and delete over the metadata and file stores.
type UploadService struct {
	store     MetadataStore
	files     FileStore
	validator *Validator
	limiter   *Limiter
	gate      AdmissionGate
	mediaKind string

	newID func(n int) (string, error)
	now   func() time.Time
}

// NewUploadService creates a new UploadService. gate may be nil.
func NewUploadService(store MetadataStore, files FileStore, validator *Validator, limiter *Limiter, gate AdmissionGate, mediaKind string) *UploadService {
	return &UploadService{
		store:     store,
		files:     files,
		validator: validator,
		limiter:   limiter,
		gate:      gate,
		mediaKind: mediaKind,
		newID:     utils.RandomSlug,
		now:       time.Now,
	}
}

// Ingest validates, rate-checks, places and records one upload.
func (s *UploadService) Ingest(ctx context.Context, d UploadDescriptor, expiryChoice, originIP, userAgent string) (*IngestResult, error) {
	res, mime, size, err := s.ingest(ctx, d, expiryChoice, originIP, userAgent)
	if err != nil {
		metrics.RecordUpload(mime, string(KindOf(err)), 0)
		return nil, err
	}
	metrics.RecordUpload(mime, "success", size)
	return res, nil
}

func (s *UploadService) ingest(ctx context.Context, d UploadDescriptor, expiryChoice, originIP, userAgent string) (*IngestResult, string, int64, error) {
	v, err := s.validator.Validate(d)
	if err != nil {
		return nil, "", 0, err
	}
	size := int64(len(v.Data))
	now := s.now()

	if err := s.limiter.Check(ctx, originIP, size, now); err != nil {
		if KindOf(err) == KindPersistence {
			utils.Logger.Error("upload window query failed", zap.String("ip", originIP), zap.Error(err))
		}
		return nil, v.Mime, 0, err
	}

	release := func() {}
	if s.gate != nil {
		var ok bool
		if release, ok = s.gate.Reserve(ctx, originIP); !ok {
			return nil, v.Mime, 0, newUploadError(KindRateLimitCount, "Upload rate limit reached (files/hour). Try again later.", nil)
		}
	}

	res, err := s.persist(ctx, v, now, expiryChoice, originIP, userAgent)
	if err != nil {
		release()
		return nil, v.Mime, 0, err
	}
	return res, v.Mime, size, nil
}

// persist generates identifiers, places the file and inserts the record. A failed
// insert removes the placed file again.
func (s *UploadService) persist(ctx context.Context, v *ValidatedUpload, now time.Time, expiryChoice, originIP, userAgent string) (*IngestResult, error) {
	size := int64(len(v.Data))
	expiresAt := ResolveExpiry(expiryChoice, now)

	slug, err := s.newID(utils.SlugLength)
	if err != nil {
		utils.Logger.Error("slug generation failed", zap.Error(err))
		return nil, newUploadError(KindStorage, "Upload failed.", err)
	}
	token, err := s.newID(utils.DeleteTokenLength)
	if err != nil {
		utils.Logger.Error("delete token generation failed", zap.Error(err))
		return nil, newUploadError(KindStorage, "Upload failed.", err)
	}

	storedPath, written, err := s.files.Place(s.mediaKind, slug, v.Ext, now, bytes.NewReader(v.Data))
	if err != nil {
		utils.Logger.Error("place upload failed", zap.String("slug", slug), zap.Error(err))
		return nil, newUploadError(KindStorage, "Failed to move uploaded file.", err)
	}
	if written != size {
		utils.Logger.Error("place upload wrote short file", zap.String("slug", slug),
			zap.Int64("written", written), zap.Int64("size", size))
		s.removeQuietly(storedPath)
		return nil, newUploadError(KindStorage, "Failed to move uploaded file.", errors.New("short write"))
	}

	record := &models.Upload{
		Slug:           slug,
		DeleteToken:    token,
		MediaKind:      s.mediaKind,
		Mime:           v.Mime,
		Ext:            v.Ext,
		OriginalName:   v.OriginalName,
		StoredPath:     storedPath,
		SizeBytes:      written,
		OriginIP:       originIP,
		UserAgent:      truncate(userAgent, 512),
		LastAccessedAt: now,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
	}
	if err := s.store.Insert(ctx, record); err != nil {
		utils.Logger.Error("insert upload record failed, removing placed file",
			zap.String("slug", slug), zap.String("stored_path", storedPath), zap.Error(err))
		s.removeQuietly(storedPath)
		return nil, newUploadError(KindPersistence, "Upload failed.", err)
	}
	return &IngestResult{Slug: slug, DeleteToken: token, ExpiresAt: expiresAt}, nil
}

// Fetch returns the visible record for slug, or nil when it is unknown or expired.
func (s *UploadService) Fetch(ctx context.Context, slug string) (*models.Upload, error) {
	slug, ok := lookupKey(slug, maxSlugKeyLen)
	if !ok {
		metrics.RecordFetch(false)
		return nil, nil
	}
	now := s.now()
	// bump first so the select below observes the incremented counter
	if err := s.store.BumpAccess(ctx, slug, now); err != nil {
		utils.Logger.Warn("bump access failed", zap.String("slug", slug), zap.Error(err))
	}
	u, err := s.store.FindVisible(ctx, slug, now)
	if err != nil {
		return nil, err
	}
	metrics.RecordFetch(u != nil)
	return u, nil
}

// Open returns the stored bytes of a record obtained from Fetch.
func (s *UploadService) Open(u *models.Upload) (afero.File, error) {
	return s.files.Open(u.StoredPath)
}

// Delete removes the object owned by token. It reports false when no object matches.
func (s *UploadService) Delete(ctx context.Context, token string) (bool, error) {
	token, ok := lookupKey(token, maxTokenKeyLen)
	if !ok {
		metrics.RecordDelete(false)
		return false, nil
	}
	u, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return false, err
	}
	if u == nil {
		metrics.RecordDelete(false)
		return false, nil
	}
	if err := s.purge(ctx, u); err != nil {
		if errors.Is(err, repositories.ErrUploadNotFound) {
			metrics.RecordDelete(false)
			return false, nil
		}
		return false, err
	}
	metrics.RecordDelete(true)
	return true, nil
}

// Reap physically removes one batch of expired uploads. Expired records are already
// invisible to Fetch, so this only reclaims disk space.
func (s *UploadService) Reap(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, s.now(), reapBatchSize)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for i := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.purge(ctx, &expired[i]); err != nil {
			if !errors.Is(err, repositories.ErrUploadNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}
	metrics.RecordReap(removed)
	return removed, errors.Join(errs...)
}

// purge removes the file first and the record second. A file that cannot be unlinked
// keeps its record so a retry can finish the job. A record removed concurrently comes
// back as repositories.ErrUploadNotFound.
func (s *UploadService) purge(ctx context.Context, u *models.Upload) error {
	if err := s.files.Remove(u.StoredPath); err != nil {
		utils.Logger.Error("remove stored file failed",
			zap.String("slug", u.Slug), zap.String("stored_path", u.StoredPath), zap.Error(err))
		return newUploadError(KindStorage, "Failed to remove stored file.", err)
	}
	if err := s.store.DeleteByID(ctx, u.ID); err != nil {
		if errors.Is(err, repositories.ErrUploadNotFound) {
			return err
		}
		utils.Logger.Error("delete upload record failed", zap.String("slug", u.Slug), zap.Error(err))
		return newUploadError(KindPersistence, "Failed to delete upload record.", err)
	}
	return nil
}

func (s *UploadService) removeQuietly(storedPath string) {
	if err := s.files.Remove(storedPath); err != nil {
		utils.Logger.Error("compensating remove failed", zap.String("stored_path", storedPath), zap.Error(err))
	}
}

// lookupKey trims a client supplied key and rejects lengths outside 1..max.
func lookupKey(key string, max int) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > max {
		return "", false
	}
	return key, true
}

// truncate drops invalid UTF-8 and cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
