package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// AuthClient handles Supabase Auth (GoTrue) operations.
type AuthClient struct {
	client *Client
}

// SignUp creates a new identity user.
func (a *AuthClient) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, statusCode, err := a.client.request(ctx, "POST", a.client.authURL+"/signup", body, nil)
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// With email confirmation enabled GoTrue returns the bare user.
	if session.User == nil {
		var user User
		if err := json.Unmarshal(respBody, &user); err == nil && user.ID != "" {
			session.User = &user
		}
	}

	return &session, nil
}

// SignInWithPassword authenticates a user with email/password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, statusCode, err := a.client.request(ctx, "POST", a.client.authURL+"/token?grant_type=password", body, nil)
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &session, nil
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	respBody, statusCode, err := a.client.requestWithToken(ctx, "POST", a.client.authURL+"/logout", nil, nil, accessToken)
	if err != nil {
		return err
	}

	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}

	return nil
}

// GetUser resolves an access token to its identity user.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	respBody, statusCode, err := a.client.requestWithToken(ctx, "GET", a.client.authURL+"/user", nil, nil, accessToken)
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		if statusCode == 401 || statusCode == 403 {
			return nil, ErrUnauthorized
		}
		return nil, parseError(respBody, statusCode)
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &user, nil
}

// AdminDeleteUser removes an identity user. Requires the service role key.
func (a *AuthClient) AdminDeleteUser(ctx context.Context, userID string) error {
	respBody, statusCode, err := a.client.requestWithServiceKey(ctx, "DELETE", a.client.authURL+"/admin/users/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return err
	}

	if statusCode == 404 {
		return ErrNotFound
	}
	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}

	return nil
}
