package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// mapGitHubUserInfo normalizes the GitHub /user payload. GitHub omits
// the email for users with a private address, in which case the email
// list endpoint is consulted for the first primary, verified entry.
func mapGitHubUserInfo(ctx context.Context, c *Client, data map[string]any, accessToken string) (*UserInfo, error) {
	id, ok := data["id"].(float64)
	if !ok {
		return nil, errors.New("missing id in GitHub profile")
	}
	accountID := strconv.FormatInt(int64(id), 10)

	email, _ := data["email"].(string)
	if email == "" {
		fetched, err := c.fetchGitHubPrimaryEmail(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		email = fetched
	}
	if email == "" {
		return nil, errors.New("no verified email found in GitHub profile")
	}

	name, _ := data["name"].(string)
	if name == "" {
		name, _ = data["login"].(string)
	}
	avatar, _ := data["avatar_url"].(string)

	return &UserInfo{
		ProviderAccountID: accountID,
		Email:             email,
		Name:              name,
		Avatar:            avatar,
	}, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (c *Client) fetchGitHubPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	body, err := c.getJSON(ctx, c.emailsURL, accessToken)
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}

	var emails []githubEmail
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}
