package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/guitaripod/pixie/internal/models"
)

// DeviceFlowStart is the response to a device authorization request.
// DeviceCode is our handle, not the upstream code; clients poll with it.
type DeviceFlowStart struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// DeviceFlowState is the response of the non-polling status endpoint.
type DeviceFlowState struct {
	Status    models.DeviceFlowStatus `json:"status"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// StartDeviceFlow begins an RFC 8628 flow against the chosen provider
// and stores it under an opaque handle of our own.
func (s *AuthService) StartDeviceFlow(ctx context.Context, clientType, provider string) (*DeviceFlowStart, error) {
	var upstream struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}

	switch provider {
	case "github":
		form := url.Values{}
		form.Set("client_id", s.cfg.GitHubClientID)
		form.Set("scope", "read:user user:email")
		if err := s.postForm(ctx, s.githubBaseURL+"/login/device/code", form, nil, &upstream); err != nil {
			return nil, err
		}

	case "google":
		// Google names the field verification_url.
		var googleResp struct {
			DeviceCode      string `json:"device_code"`
			UserCode        string `json:"user_code"`
			VerificationURL string `json:"verification_url"`
			ExpiresIn       int    `json:"expires_in"`
			Interval        int    `json:"interval"`
		}
		form := url.Values{}
		form.Set("client_id", s.cfg.GoogleDeviceClientID)
		form.Set("scope", "openid email profile")
		if err := s.postForm(ctx, s.googleBaseURL+"/device/code", form, nil, &googleResp); err != nil {
			return nil, err
		}
		upstream.DeviceCode = googleResp.DeviceCode
		upstream.UserCode = googleResp.UserCode
		upstream.VerificationURI = googleResp.VerificationURL
		upstream.ExpiresIn = googleResp.ExpiresIn
		upstream.Interval = googleResp.Interval

	default:
		return nil, fmt.Errorf("%w: device flow supports github and google, got %q", ErrInvalidRequest, provider)
	}

	if upstream.DeviceCode == "" || upstream.UserCode == "" {
		return nil, fmt.Errorf("device authorization failed for %s", provider)
	}
	if upstream.Interval < 5 {
		upstream.Interval = 5
	}
	if upstream.ExpiresIn <= 0 {
		upstream.ExpiresIn = 900
	}

	now := time.Now().UTC()
	flow := &models.DeviceAuthFlow{
		ID:         uuid.NewString(),
		DeviceCode: upstream.DeviceCode,
		UserCode:   upstream.UserCode,
		ClientType: clientType,
		Provider:   provider,
		ExpiresAt:  now.Add(time.Duration(upstream.ExpiresIn) * time.Second),
		CreatedAt:  now,
	}
	if err := s.repos.DeviceAuth.Create(ctx, flow); err != nil {
		return nil, err
	}

	return &DeviceFlowStart{
		DeviceCode:              flow.ID,
		UserCode:                upstream.UserCode,
		VerificationURI:         upstream.VerificationURI,
		VerificationURIComplete: upstream.VerificationURI + "?user_code=" + url.QueryEscape(upstream.UserCode),
		ExpiresIn:               upstream.ExpiresIn,
		Interval:                upstream.Interval,
	}, nil
}

// PollDeviceFlow checks whether the user has approved the device. A
// completed flow keeps returning the same credentials, so retries after
// a dropped response are safe.
func (s *AuthService) PollDeviceFlow(ctx context.Context, deviceCode string) (*AuthResult, error) {
	flow, err := s.repos.DeviceAuth.GetByID(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, ErrInvalidDeviceCode
	}

	switch flow.Status(time.Now().UTC()) {
	case models.DeviceFlowExpired:
		return nil, ErrDeviceCodeExpired
	case models.DeviceFlowCompleted:
		user, err := s.repos.User.GetByID(ctx, flow.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrInvalidDeviceCode
		}
		return &AuthResult{APIKey: user.APIKey, UserID: user.ID}, nil
	}

	profile, err := s.pollUpstream(ctx, flow)
	if err != nil {
		return nil, err
	}

	user, err := s.UpsertUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	if err := s.repos.DeviceAuth.SetUser(ctx, flow.ID, user.ID); err != nil {
		return nil, err
	}
	return &AuthResult{APIKey: user.APIKey, UserID: user.ID}, nil
}

// pollUpstream tries the provider's device grant once and maps the
// standard RFC 8628 errors onto our sentinels.
func (s *AuthService) pollUpstream(ctx context.Context, flow *models.DeviceAuthFlow) (oauthProfile, error) {
	form := url.Values{}
	form.Set("device_code", flow.DeviceCode)
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	var endpoint string
	switch flow.Provider {
	case "github":
		form.Set("client_id", s.cfg.GitHubClientID)
		endpoint = s.githubBaseURL + "/login/oauth/access_token"
	case "google":
		form.Set("client_id", s.cfg.GoogleDeviceClientID)
		form.Set("client_secret", s.cfg.GoogleClientSecret)
		endpoint = s.googleBaseURL + "/token"
	default:
		return oauthProfile{}, fmt.Errorf("%w: unknown device flow provider %q", ErrInvalidRequest, flow.Provider)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		IDToken     string `json:"id_token"`
		Error       string `json:"error"`
	}
	if err := s.postForm(ctx, endpoint, form, nil, &token); err != nil {
		return oauthProfile{}, err
	}

	switch token.Error {
	case "":
	case "authorization_pending":
		return oauthProfile{}, ErrAuthorizationPending
	case "slow_down":
		return oauthProfile{}, ErrSlowDown
	case "expired_token":
		return oauthProfile{}, ErrDeviceCodeExpired
	case "access_denied":
		return oauthProfile{}, ErrAccessDenied
	default:
		return oauthProfile{}, fmt.Errorf("device grant failed: %s", token.Error)
	}

	switch flow.Provider {
	case "github":
		if token.AccessToken == "" {
			return oauthProfile{}, ErrAuthorizationPending
		}
		return s.githubProfile(ctx, token.AccessToken)
	default:
		if token.IDToken == "" {
			return oauthProfile{}, ErrAuthorizationPending
		}
		claims, err := parseJWTClaims(token.IDToken)
		if err != nil {
			return oauthProfile{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
		}
		return oauthProfile{
			Provider:   "google",
			ProviderID: claims["sub"],
			Email:      claims["email"],
			Name:       claims["name"],
		}, nil
	}
}

// DeviceFlowStatus reports the current flow state without triggering an
// upstream poll.
func (s *AuthService) DeviceFlowStatus(ctx context.Context, deviceCode string) (*DeviceFlowState, error) {
	flow, err := s.repos.DeviceAuth.GetByID(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, ErrInvalidDeviceCode
	}
	return &DeviceFlowState{
		Status:    flow.Status(time.Now().UTC()),
		ExpiresAt: flow.ExpiresAt,
	}, nil
}
