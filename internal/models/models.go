// Package models defines the core data structures for MaryCall.
//
// It includes transport-level value types (chat actions, video metadata),
// webhook request/response payloads, and API response envelopes shared
// across modules.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ChatAction identifies a Telegram chat action shown to the user while the
// bot prepares the next message.
type ChatAction string

const (
	// ChatActionTyping shows "typing..." in the user's chat.
	ChatActionTyping ChatAction = "typing"
	// ChatActionRecordVoice shows "recording voice message...".
	ChatActionRecordVoice ChatAction = "record_voice"
	// ChatActionUploadVideo shows "sending video...".
	ChatActionUploadVideo ChatAction = "upload_video"
)

// Error variables for better error handling and testability
var (
	ErrMissingUserID   = errors.New("userId is required")
	ErrInvalidUserID   = errors.New("userId must be a numeric identifier")
	ErrEmptyText       = errors.New("message text cannot be empty")
	ErrTransportClosed = errors.New("transport is not connected")
)

// VideoMetadata carries optional attributes for outbound video sends.
type VideoMetadata struct {
	Duration          int  `json:"duration,omitempty"` // seconds
	SupportsStreaming bool `json:"supports_streaming,omitempty"`
}

// CallEndedRequest is the payload delivered by the external video-call page
// when a call finishes. UserID is a json.Number because the caller is not
// consistent about sending it as a number or a string.
type CallEndedRequest struct {
	UserID   json.Number `json:"userId"`
	Duration string      `json:"duration,omitempty"`
}

// ParseUserID returns the numeric user id from the webhook payload.
func (r CallEndedRequest) ParseUserID() (int64, error) {
	if r.UserID.String() == "" {
		return 0, ErrMissingUserID
	}
	id, err := r.UserID.Int64()
	if err != nil {
		return 0, ErrInvalidUserID
	}
	return id, nil
}

// APIResponse provides a consistent envelope for all API responses.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a success response with a result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "success", Result: result}
}

// SuccessWithMessage creates a success response with a message and result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: "success", Message: message, Result: result}
}

// Error creates an error response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}

// RateLimited creates the response body returned with HTTP 429.
func RateLimited(message string) APIResponse {
	return APIResponse{Status: "rate_limited", Message: message}
}

// HealthStatus reports process liveness and store connectivity.
type HealthStatus struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	StoreBackend string    `json:"store_backend"`
	TrackedUsers int       `json:"tracked_users"`
}

// FollowupStats summarizes active follow-up campaigns for the stats endpoint.
type FollowupStats struct {
	ActiveCampaigns int     `json:"active_campaigns"`
	UserIDs         []int64 `json:"user_ids"`
}

// ActivityStats is a point-in-time snapshot of tracked user activity.
type ActivityStats struct {
	OnlineNow         int            `json:"online_now"`
	DailyUsers        int            `json:"daily_users"`
	WeeklyUsers       int            `json:"weekly_users"`
	InteractionsToday int            `json:"interactions_today"`
	InteractionsWeek  int            `json:"interactions_week"`
	HourlyStats       map[int]int    `json:"hourly_stats"`
	ActionCounts      map[string]int `json:"action_counts"`
	LastUpdate        time.Time      `json:"last_update"`
}
