package oauth

import (
	"context"
	"errors"
	"fmt"
)

// mapDiscordUserInfo normalizes the Discord /users/@me payload. Discord
// serves avatars from its CDN keyed by user ID and avatar hash.
func mapDiscordUserInfo(_ context.Context, _ *Client, data map[string]any, _ string) (*UserInfo, error) {
	email, _ := data["email"].(string)
	if email == "" {
		return nil, errors.New("no email found in Discord profile")
	}
	if verified, _ := data["verified"].(bool); !verified {
		return nil, errors.New("email not verified with Discord")
	}

	id, _ := data["id"].(string)
	if id == "" {
		return nil, errors.New("missing id in Discord profile")
	}

	name, _ := data["global_name"].(string)
	if name == "" {
		name, _ = data["username"].(string)
	}

	var avatar string
	if hash, _ := data["avatar"].(string); hash != "" {
		avatar = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", id, hash)
	}

	return &UserInfo{
		ProviderAccountID: id,
		Email:             email,
		Name:              name,
		Avatar:            avatar,
	}, nil
}
