package infrastructure

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
	"github.com/vitovidale/video-insight-service/usecase"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope is the body of every error response. Quota refusals carry
// the guest's quota block beside the error.
type ErrorEnvelope struct {
	Error APIError          `json:"error"`
	Quota *domain.QuotaInfo `json:"quota,omitempty"`
}

// errorResponse maps an error to its status code, public code and message.
func errorResponse(err error) (int, ErrorEnvelope) {
	var quotaErr *domain.QuotaError
	if errors.As(err, &quotaErr) {
		quota := quotaErr.Quota
		env := ErrorEnvelope{Error: APIError{Message: err.Error()}, Quota: &quota}
		switch {
		case errors.Is(quotaErr.Reason, domain.ErrGuestConverted):
			env.Error.Code = "guest_converted"
			env.Error.Message = "this guest session was converted, sign in to continue"
			return http.StatusForbidden, env
		case errors.Is(quotaErr.Reason, domain.ErrGuestExpired):
			env.Error.Code = "guest_expired"
			env.Error.Message = "guest session expired, start a new one or sign up"
			return http.StatusUnauthorized, env
		default:
			env.Error.Code = "quota_exceeded"
			env.Error.Message = "guest video limit reached, sign up to add more videos"
			return http.StatusForbidden, env
		}
	}

	table := []struct {
		marker error
		status int
		code   string
	}{
		{domain.ErrValidation, http.StatusBadRequest, "validation_error"},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrTransient, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, row := range table {
		if errors.Is(err, row.marker) {
			return row.status, ErrorEnvelope{Error: APIError{Message: err.Error(), Code: row.code}}
		}
	}
	return http.StatusInternalServerError, ErrorEnvelope{Error: APIError{Message: "internal server error", Code: "internal_error"}}
}

func abortWithError(c *gin.Context, err error) {
	status, env := errorResponse(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, env)
}

type videoResponse struct {
	VideoID         string             `json:"video_id"`
	Status          domain.VideoStatus `json:"status"`
	Title           string             `json:"title"`
	ThumbnailURL    string             `json:"thumbnail_url"`
	DurationSeconds int                `json:"duration_seconds"`
	SourceLink      string             `json:"source_link"`
	RetryCount      int                `json:"retry_count"`
	LastError       string             `json:"last_error,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func toVideoResponse(v *domain.Video) videoResponse {
	return videoResponse{
		VideoID:         v.ID,
		Status:          v.Status,
		Title:           v.Title,
		ThumbnailURL:    v.ThumbnailURL,
		DurationSeconds: v.DurationSeconds,
		SourceLink:      v.SourceLink,
		RetryCount:      v.RetryCount,
		LastError:       v.LastError,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

// VideoHandlers serves the submission and library routes.
type VideoHandlers struct {
	Submit  *usecase.SubmitVideoUseCase
	List    *usecase.ListLibraryUseCase
	Details *usecase.VideoDetailsUseCase
	Remove  *usecase.RemoveVideoUseCase

	log *logger.Logger
}

func NewVideoHandlers(
	submit *usecase.SubmitVideoUseCase,
	list *usecase.ListLibraryUseCase,
	details *usecase.VideoDetailsUseCase,
	remove *usecase.RemoveVideoUseCase,
	log *logger.Logger,
) *VideoHandlers {
	return &VideoHandlers{Submit: submit, List: list, Details: details, Remove: remove, log: log.With("handler", "VideoHandlers")}
}

type submitVideoRequest struct {
	SourceLink  string `json:"source_link"`
	YoutubeLink string `json:"youtube_link"`
}

type submitVideoResponse struct {
	VideoID string             `json:"video_id"`
	Status  domain.VideoStatus `json:"status"`
	Outcome string             `json:"outcome"`
	Message string             `json:"message"`
	Quota   *domain.QuotaInfo  `json:"quota,omitempty"`
}

// SubmitVideo handles POST /videos.
func (h *VideoHandlers) SubmitVideo(c *gin.Context) {
	var req submitVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.Wrap(domain.ErrValidation, "submit", "", "request body must be JSON with source_link", nil))
		return
	}
	link := strings.TrimSpace(req.SourceLink)
	if link == "" {
		link = strings.TrimSpace(req.YoutubeLink)
	}

	out, err := h.Submit.Execute(c.Request.Context(), usecase.SubmitVideoInput{Caller: identityFrom(c), SourceLink: link})
	if err != nil {
		abortWithError(c, err)
		return
	}
	status := http.StatusOK
	if out.Outcome == usecase.OutcomeQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, submitVideoResponse{
		VideoID: out.VideoID,
		Status:  out.Status,
		Outcome: string(out.Outcome),
		Message: out.Message,
		Quota:   out.Quota,
	})
}

type libraryResponse struct {
	Videos []videoResponse    `json:"videos"`
	Quota  *domain.QuotaInfo `json:"quota,omitempty"`
}

// ListVideos handles GET /videos.
func (h *VideoHandlers) ListVideos(c *gin.Context) {
	out, err := h.List.Execute(c.Request.Context(), identityFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp := libraryResponse{Videos: make([]videoResponse, 0, len(out.Videos)), Quota: out.Quota}
	for i := range out.Videos {
		resp.Videos = append(resp.Videos, toVideoResponse(&out.Videos[i]))
	}
	c.JSON(http.StatusOK, resp)
}

type videoDetailsResponse struct {
	videoResponse
	Insights *domain.Insights `json:"insights"`
}

// GetVideo handles GET /videos/:video_id.
func (h *VideoHandlers) GetVideo(c *gin.Context) {
	out, err := h.Details.Execute(c.Request.Context(), identityFrom(c), c.Param("video_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, videoDetailsResponse{videoResponse: toVideoResponse(out.Video), Insights: out.Insights})
}

// DeleteVideo handles DELETE /videos/:video_id.
func (h *VideoHandlers) DeleteVideo(c *gin.Context) {
	videoID := c.Param("video_id")
	if err := h.Remove.Execute(c.Request.Context(), identityFrom(c), videoID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "video removed from library", "video_id": videoID})
}

// GuestHandlers serves guest session creation and conversion.
type GuestHandlers struct {
	Resolver *usecase.IdentityResolver
	Session  *usecase.CreateGuestSessionUseCase
	Convert  *usecase.ConvertGuestUseCase

	log *logger.Logger
}

func NewGuestHandlers(
	resolver *usecase.IdentityResolver,
	session *usecase.CreateGuestSessionUseCase,
	convert *usecase.ConvertGuestUseCase,
	log *logger.Logger,
) *GuestHandlers {
	return &GuestHandlers{Resolver: resolver, Session: session, Convert: convert, log: log.With("handler", "GuestHandlers")}
}

type guestSessionResponse struct {
	GuestID   string    `json:"guest_id"`
	ExpiresAt time.Time `json:"expires_at"`
	domain.QuotaInfo
}

// CreateSession handles POST /guest/session.
func (h *GuestHandlers) CreateSession(c *gin.Context) {
	guest, err := h.Session.Execute(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, guestSessionResponse{GuestID: guest.ID, ExpiresAt: guest.ExpiresAt, QuotaInfo: guest.Quota()})
}

type convertRequest struct {
	GuestID string `json:"guest_id"`
}

type convertResponse struct {
	GuestID           string `json:"guest_id"`
	UserID            string `json:"user_id"`
	VideosTransferred int    `json:"videos_transferred"`
	AlreadyConverted  bool   `json:"already_converted"`
	Message           string `json:"message"`
}

// ConvertGuest handles POST /guest/convert. It needs the registered bearer
// token and the guest marker, from the header or the JSON body.
func (h *GuestHandlers) ConvertGuest(c *gin.Context) {
	guestID := c.GetHeader(GuestHeader)
	if strings.TrimSpace(guestID) == "" {
		var req convertRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			guestID = req.GuestID
		}
	}
	user, guestID, err := h.Resolver.ResolveConversion(c.GetHeader("Authorization"), guestID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out, err := h.Convert.Execute(c.Request.Context(), user, guestID)
	if err != nil {
		h.log.Warn("guest conversion failed", "guest_id", guestID, "user", user.ID, "error", err)
		abortWithError(c, err)
		return
	}
	msg := "guest videos transferred"
	if out.AlreadyConverted {
		msg = "guest session was already converted"
	}
	c.JSON(http.StatusOK, convertResponse{
		GuestID:           out.GuestID,
		UserID:            out.UserID,
		VideosTransferred: out.VideosTransferred,
		AlreadyConverted:  out.AlreadyConverted,
		Message:           msg,
	})
}
