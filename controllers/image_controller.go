package controllers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/imgdrop/services"
	"github.com/cppla/imgdrop/utils"
)

// Business codes returned in the envelope next to the HTTP status.
const (
	CodeTransport       = 40001
	CodeTooLarge        = 41301
	CodeUnsupportedType = 41501
	CodeContentMismatch = 41502
	CodeRateLimitCount  = 42902
	CodeRateLimitBytes  = 42903
	CodeStorage         = 50001
	CodePersistence     = 50002
)

// multipart boundaries and the expiry field ride on top of the file itself
const multipartOverhead = 64 * 1024

// ImageController exposes upload, retrieval and deletion of images.
type ImageController struct {
	svc      *services.UploadService
	maxBytes int64
}

// NewImageController creates a new ImageController.
func NewImageController(svc *services.UploadService, maxBytes int64) *ImageController {
	return &ImageController{svc: svc, maxBytes: maxBytes}
}

// Upload accepts multipart field "image" and optional form field "expiry".
func (c *ImageController) Upload(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxBytes+multipartOverhead)

	file, header, err := ctx.Request.FormFile("image")
	desc := services.UploadDescriptor{Status: transportStatus(err)}
	if err == nil {
		defer file.Close()
		desc.Filename = header.Filename
		desc.Size = header.Size
		desc.Body = file
	}

	res, err := c.svc.Ingest(ctx.Request.Context(), desc, ctx.PostForm("expiry"), ctx.ClientIP(), ctx.Request.UserAgent())
	if err != nil {
		c.uploadFailed(ctx, desc.Status, err)
		return
	}

	utils.Respond(ctx, http.StatusCreated, utils.CodeOK, "uploaded", gin.H{
		"slug":       res.Slug,
		"url":        "/i/" + res.Slug,
		"delete_url": "/d/" + res.DeleteToken,
		"expires_at": res.ExpiresAt,
	})
}

// Show streams the stored bytes of a visible image.
func (c *ImageController) Show(ctx *gin.Context) {
	u, err := c.svc.Fetch(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "internal server error")
		return
	}
	if u == nil {
		notFound(ctx)
		return
	}

	f, err := c.svc.Open(u)
	if err != nil {
		// record without file: treat like any other missing image
		utils.Logger.Warn("stored file missing", zap.String("slug", u.Slug), zap.String("stored_path", u.StoredPath), zap.Error(err))
		notFound(ctx)
		return
	}
	defer f.Close()

	ctx.Header("Content-Type", u.Mime)
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Header("Cache-Control", cacheControl(u.ExpiresAt))
	http.ServeContent(ctx.Writer, ctx.Request, u.Slug+"."+u.Ext, u.CreatedAt, f)
}

// Info returns the public metadata of a visible image.
func (c *ImageController) Info(ctx *gin.Context) {
	u, err := c.svc.Fetch(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "internal server error")
		return
	}
	if u == nil {
		notFound(ctx)
		return
	}
	utils.Success(ctx, gin.H{
		"upload": u,
		"url":    "/i/" + u.Slug,
	})
}

// Delete removes the image owned by the token in the path.
func (c *ImageController) Delete(ctx *gin.Context) {
	deleted, err := c.svc.Delete(ctx.Request.Context(), ctx.Param("token"))
	if err != nil {
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, CodeStorage, "Delete failed.")
		return
	}
	if !deleted {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "Image not found or already deleted.")
		return
	}
	utils.Success(ctx, gin.H{"deleted": true})
}

func (c *ImageController) uploadFailed(ctx *gin.Context, status services.TransportStatus, err error) {
	var ue *services.UploadError
	message := "Upload failed."
	if errors.As(err, &ue) && services.IsClientFault(err) {
		message = ue.Message
	}

	switch services.KindOf(err) {
	case services.KindTransport:
		if status == services.TransportTooLarge {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, CodeTooLarge, message)
			return
		}
		utils.Error(ctx, http.StatusBadRequest, CodeTransport, message)
	case services.KindSize:
		utils.Error(ctx, http.StatusRequestEntityTooLarge, CodeTooLarge, message)
	case services.KindType:
		utils.Error(ctx, http.StatusUnsupportedMediaType, CodeUnsupportedType, message)
	case services.KindContentMismatch:
		utils.Error(ctx, http.StatusUnsupportedMediaType, CodeContentMismatch, message)
	case services.KindRateLimitCount:
		ctx.Header("Retry-After", "3600")
		utils.Error(ctx, http.StatusTooManyRequests, CodeRateLimitCount, message)
	case services.KindRateLimitBytes:
		ctx.Header("Retry-After", "3600")
		utils.Error(ctx, http.StatusTooManyRequests, CodeRateLimitBytes, message)
	case services.KindPersistence:
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, CodePersistence, message)
	default:
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, CodeStorage, message)
	}
}

// transportStatus maps multipart parsing failures onto upload transport statuses.
func transportStatus(err error) services.TransportStatus {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return services.TransportOK
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return services.TransportNoFile
	case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
		return services.TransportTooLarge
	default:
		return services.TransportPartial
	}
}

func notFound(ctx *gin.Context) {
	utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "Image not found or expired.")
}

func cacheControl(expiresAt *time.Time) string {
	if expiresAt == nil {
		return "public, max-age=86400"
	}
	return "private, no-store"
}
