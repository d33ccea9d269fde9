package oauth

import (
	"context"
	"errors"
)

// mapGoogleUserInfo normalizes the Google userinfo payload. Google
// reports verification explicitly, so an unverified address fails the
// whole callback.
func mapGoogleUserInfo(_ context.Context, _ *Client, data map[string]any, _ string) (*UserInfo, error) {
	email, _ := data["email"].(string)
	if email == "" {
		return nil, errors.New("no email found in Google profile")
	}
	if verified, _ := data["verified_email"].(bool); !verified {
		return nil, errors.New("email not verified with Google")
	}

	id, _ := data["id"].(string)
	if id == "" {
		return nil, errors.New("missing id in Google profile")
	}
	name, _ := data["name"].(string)
	avatar, _ := data["picture"].(string)

	return &UserInfo{
		ProviderAccountID: id,
		Email:             email,
		Name:              name,
		Avatar:            avatar,
	}, nil
}
