package domain

import "time"

// GuestAccount is the quota-bearing ownership entry of an anonymous caller.
type GuestAccount struct {
	ID          string
	VideoCount  int
	MaxVideos   int
	ConvertedTo string
	IsActive    bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

func (g *GuestAccount) Converted() bool { return g.ConvertedTo != "" }

func (g *GuestAccount) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}

func (g *GuestAccount) Quota() QuotaInfo {
	return NewQuotaInfo(g.VideoCount, g.MaxVideos)
}

// QuotaInfo is the guest quota block returned to callers.
type QuotaInfo struct {
	VideoCount   int  `json:"video_count"`
	MaxVideos    int  `json:"max_videos"`
	Remaining    int  `json:"videos_remaining"`
	LimitReached bool `json:"limit_reached"`
}

func NewQuotaInfo(count, max int) QuotaInfo {
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return QuotaInfo{
		VideoCount:   count,
		MaxVideos:    max,
		Remaining:    remaining,
		LimitReached: remaining == 0,
	}
}
