package mediaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// Initiate starts a multipart upload.
func (c *Client) Initiate(ctx context.Context, token string, req model.InitiateRequest) (*model.InitiateResponse, error) {
	body, err := c.Post(ctx, token, PathInitiate, req)
	if err != nil {
		return nil, err
	}

	var out model.InitiateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("mediaapi: decoding initiate response: %w", err)
	}
	if out.MediaUUID == "" || out.UploadID == "" {
		return nil, errors.New("mediaapi: initiate response missing identifiers")
	}
	return &out, nil
}

// PartURL returns the signed URL for one part. The backend answers with the
// URL as plain text.
func (c *Client) PartURL(ctx context.Context, token string, req model.PartURLRequest) (string, error) {
	body, err := c.Post(ctx, token, PathPartURL, req)
	if err != nil {
		return "", err
	}

	signed := strings.TrimSpace(string(body))
	if signed == "" {
		return "", fmt.Errorf("mediaapi: empty signed URL for part %d", req.PartNumber)
	}
	return signed, nil
}

// Finalise completes a multipart upload.
func (c *Client) Finalise(ctx context.Context, token string, req model.FinalizeRequest) (*model.FinalizeResponse, error) {
	body, err := c.Post(ctx, token, PathFinalise, req)
	if err != nil {
		return nil, err
	}

	var out model.FinalizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("mediaapi: decoding finalise response: %w", err)
	}
	return &out, nil
}

// Authorized binds a client to one access token.
type Authorized struct {
	client *Client
	token  string
}

// WithToken returns the media calls bound to token.
func (c *Client) WithToken(token string) *Authorized {
	return &Authorized{client: c, token: token}
}

func (a *Authorized) Initiate(ctx context.Context, req model.InitiateRequest) (*model.InitiateResponse, error) {
	return a.client.Initiate(ctx, a.token, req)
}

func (a *Authorized) PartURL(ctx context.Context, req model.PartURLRequest) (string, error) {
	return a.client.PartURL(ctx, a.token, req)
}

func (a *Authorized) Finalise(ctx context.Context, req model.FinalizeRequest) (*model.FinalizeResponse, error) {
	return a.client.Finalise(ctx, a.token, req)
}
