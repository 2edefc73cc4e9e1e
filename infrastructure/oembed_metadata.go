package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
)

// OEmbedMetadataProvider looks up title and thumbnail through an oEmbed
// endpoint. Duration is filled only when the endpoint reports one.
type OEmbedMetadataProvider struct {
	endpoint string
	baseClient
}

func NewOEmbedMetadataProvider(endpoint string, timeout time.Duration, opts ...ClientOption) *OEmbedMetadataProvider {
	opts = append([]ClientOption{WithRetry(1, 0)}, opts...)
	return &OEmbedMetadataProvider{
		endpoint:   strings.TrimSpace(endpoint),
		baseClient: newBaseClient("metadata", timeout, 0, opts),
	}
}

type oembedResponse struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     int    `json:"duration"`
}

func (p *OEmbedMetadataProvider) FetchMetadata(ctx context.Context, videoID, sourceLink string) (domain.VideoMetadata, error) {
	query := url.Values{}
	query.Set("url", sourceLink)
	query.Set("format", "json")

	var out oembedResponse
	_, err := p.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+query.Encode(), nil)
	}, &out)
	if err != nil {
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return domain.VideoMetadata{}, domain.Wrap(domain.ErrValidation, "metadata", videoID, "video not found", nil)
		}
		return domain.VideoMetadata{}, err
	}
	return domain.VideoMetadata{
		Title:           strings.TrimSpace(out.Title),
		ThumbnailURL:    strings.TrimSpace(out.ThumbnailURL),
		DurationSeconds: out.Duration,
	}, nil
}
