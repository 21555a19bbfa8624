package api

import (
	"context"
	"fmt"

	"github.com/nhle/workdesk/internal/model"
)

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the login response.
type LoginResult struct {
	User         model.Identity `json:"user"`
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
}

// Login exchanges credentials for an identity and tokens.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	var result LoginResult
	if err := c.Post(ctx, "/auth/login", creds, &result); err != nil {
		return nil, err
	}
	if result.Token == "" || result.User.ID == "" {
		return nil, fmt.Errorf("login response missing user or token")
	}
	return &result, nil
}
