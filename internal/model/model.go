package model

import "time"

// TokenSet is the provider-issued credential bundle held by a session.
type TokenSet struct {
	AccessToken  string    `json:"accessToken" dynamodbav:"access_token"`
	RefreshToken string    `json:"refreshToken,omitempty" dynamodbav:"refresh_token,omitempty"`
	TokenType    string    `json:"tokenType,omitempty" dynamodbav:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty" dynamodbav:"scope,omitempty"`
	IDToken      string    `json:"idToken,omitempty" dynamodbav:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt" dynamodbav:"expires_at"`
}

// Attempt is one login round trip: the anti-CSRF state and the PKCE pair.
// It lives in two short-lived cookies until the callback consumes it.
type Attempt struct {
	State         string
	CodeVerifier  string
	CodeChallenge string
}

// StoredSession is the server-side session record kept in DynamoDB.
// The token set is sealed with the configured Encryptor.
type StoredSession struct {
	SessionID     string    `json:"session_id" dynamodbav:"session_id"`
	SealedTokens  string    `json:"sealed_tokens" dynamodbav:"sealed_tokens"`
	TokenExpiry   time.Time `json:"token_expiry" dynamodbav:"token_expiry"`
	UpdatedAt     time.Time `json:"updated_at" dynamodbav:"updated_at"`
	ExpiresAtUnix int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}

// InitiateRequest starts a multipart upload.
type InitiateRequest struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
}

// InitiateResponse carries the identifiers of a new multipart upload.
// Field casing is fixed by the backend.
type InitiateResponse struct {
	MediaUUID string `json:"media_uuid"`
	UploadID  string `json:"uploadId"`
}

// PartURLRequest asks for a signed URL for one part.
type PartURLRequest struct {
	MediaUUID  string `json:"media_uuid"`
	UploadID   string `json:"uploadId"`
	PartNumber int    `json:"partNumber"`
}

// CompletedPart is one acknowledged part as the finalise endpoint expects it.
type CompletedPart struct {
	ETag       string `json:"ETag,omitempty"`
	PartNumber int    `json:"PartNumber"`
}

// FinalizeRequest assembles the uploaded parts.
type FinalizeRequest struct {
	MediaUUID string          `json:"mediaUuid"`
	UploadID  string          `json:"uploadId"`
	Parts     []CompletedPart `json:"parts"`
}

// FinalizeResponse is the backend's answer to finalise.
type FinalizeResponse struct {
	ProcessedURL string           `json:"processed_url"`
	Status       ProcessingStatus `json:"status"`
}

// ProcessingStatus is the backend's media processing state after finalise.
type ProcessingStatus int

const (
	ProcessingPending ProcessingStatus = 3
	ProcessingReady   ProcessingStatus = 4
	ProcessingFailed  ProcessingStatus = 5
)

func (s ProcessingStatus) String() string {
	switch s {
	case ProcessingPending:
		return "pending"
	case ProcessingReady:
		return "ready"
	case ProcessingFailed:
		return "failed"
	default:
		return "unknown"
	}
}
