package api

import (
	"context"
	"fmt"

	"github.com/nhle/order-console/internal/model"
)

// Login exchanges credentials for a session. On success the client keeps
// the returned token for subsequent requests.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	var user model.User
	if err := c.Post(ctx, "/auth/logins", creds, &user); err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", creds.Email, err)
	}
	if user.Token == "" {
		return nil, fmt.Errorf("logging in as %s: server returned no token", creds.Email)
	}
	c.SetToken(user.Token)
	return &user, nil
}

// CurrentUser returns the user the session token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.Get(ctx, "/auth/me", &user); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	return &user, nil
}
