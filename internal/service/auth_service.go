package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

// APIKeyPrefix starts every bearer credential this service issues.
const APIKeyPrefix = "pixie_"

// AuthResult is the terminal payload of every authentication flow.
type AuthResult struct {
	APIKey string `json:"api_key"`
	UserID string `json:"user_id"`
}

// oauthProfile is the provider-independent identity extracted from an
// upstream token exchange.
type oauthProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
}

// AuthService handles OAuth sign-in across GitHub, Google and Apple.
type AuthService struct {
	cfg        *config.Config
	repos      *repository.Repositories
	httpClient *http.Client
	logger     *slog.Logger

	// Overridable in tests.
	githubBaseURL    string
	githubAPIBaseURL string
	googleBaseURL    string
	googleTokenInfo  string
	appleBaseURL     string
}

// NewAuthService creates a new auth service.
func NewAuthService(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) *AuthService {
	return &AuthService{
		cfg:        cfg,
		repos:      repos,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,

		githubBaseURL:    "https://github.com",
		githubAPIBaseURL: "https://api.github.com",
		googleBaseURL:    "https://oauth2.googleapis.com",
		googleTokenInfo:  "https://oauth2.googleapis.com/tokeninfo",
		appleBaseURL:     "https://appleid.apple.com",
	}
}

// generateAPIKey issues a fresh bearer credential.
func generateAPIKey() string {
	return APIKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// UpsertUser finds or provisions the account behind an OAuth identity.
// New accounts get an API key and an initialized credit balance.
func (s *AuthService) UpsertUser(ctx context.Context, profile oauthProfile) (*models.User, error) {
	user, err := s.repos.User.GetByProviderID(ctx, profile.Provider, profile.ProviderID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if profile.Email != "" || profile.Name != "" {
			if err := s.repos.User.UpdateProfile(ctx, user.ID, profile.Email, profile.Name); err != nil {
				s.logger.Warn("failed to refresh user profile", "user_id", user.ID, "error", err)
			}
		}
		return user, nil
	}

	user = &models.User{
		ID:         uuid.NewString(),
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
		Email:      profile.Email,
		Name:       profile.Name,
		APIKey:     generateAPIKey(),
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.repos.Credit.Initialize(ctx, user.ID); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "provider", profile.Provider)
	return user, nil
}

// AuthorizeURL builds the provider's authorization redirect.
func (s *AuthService) AuthorizeURL(provider, state, redirectURI string) (string, error) {
	switch provider {
	case "github":
		q := url.Values{}
		q.Set("client_id", s.cfg.GitHubClientID)
		q.Set("redirect_uri", redirectURI)
		q.Set("state", state)
		q.Set("scope", "read:user,user:email")
		return s.githubBaseURL + "/login/oauth/authorize?" + q.Encode(), nil

	case "google":
		q := url.Values{}
		q.Set("client_id", s.cfg.GoogleClientID)
		q.Set("redirect_uri", redirectURI)
		q.Set("state", state)
		q.Set("response_type", "code")
		q.Set("scope", "openid email profile")
		q.Set("access_type", "offline")
		q.Set("prompt", "consent")
		return "https://accounts.google.com/o/oauth2/v2/auth?" + q.Encode(), nil

	case "apple":
		q := url.Values{}
		q.Set("client_id", s.cfg.AppleServiceID)
		q.Set("redirect_uri", redirectURI)
		q.Set("state", state)
		q.Set("response_type", "code")
		q.Set("scope", "name email")
		q.Set("response_mode", "form_post")
		return s.appleBaseURL + "/auth/authorize?" + q.Encode(), nil

	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, provider)
	}
}

// Callback exchanges an authorization code and signs the user in.
func (s *AuthService) Callback(ctx context.Context, provider, code, redirectURI string) (*AuthResult, error) {
	var profile oauthProfile
	var err error

	switch provider {
	case "github":
		profile, err = s.exchangeGitHub(ctx, code)
	case "google":
		profile, err = s.exchangeGoogle(ctx, code, redirectURI)
	case "apple":
		profile, err = s.exchangeApple(ctx, code, redirectURI)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, provider)
	}
	if err != nil {
		return nil, err
	}

	user, err := s.UpsertUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &AuthResult{APIKey: user.APIKey, UserID: user.ID}, nil
}

func (s *AuthService) exchangeGitHub(ctx context.Context, code string) (oauthProfile, error) {
	form := url.Values{}
	form.Set("client_id", s.cfg.GitHubClientID)
	form.Set("client_secret", s.cfg.GitHubClientSecret)
	form.Set("code", code)

	var token struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := s.postForm(ctx, s.githubBaseURL+"/login/oauth/access_token", form, nil, &token); err != nil {
		return oauthProfile{}, err
	}
	if token.AccessToken == "" {
		return oauthProfile{}, fmt.Errorf("%w: github code exchange failed (%s)", ErrInvalidToken, token.Error)
	}
	return s.githubProfile(ctx, token.AccessToken)
}

func (s *AuthService) githubProfile(ctx context.Context, accessToken string) (oauthProfile, error) {
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := s.getJSON(ctx, s.githubAPIBaseURL+"/user", accessToken, &user); err != nil {
		return oauthProfile{}, err
	}

	email := user.Email
	if email == "" {
		// The profile email is often private; the emails endpoint lists
		// the verified primary.
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := s.getJSON(ctx, s.githubAPIBaseURL+"/user/emails", accessToken, &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return oauthProfile{
		Provider:   "github",
		ProviderID: fmt.Sprintf("%d", user.ID),
		Email:      email,
		Name:       name,
	}, nil
}

func (s *AuthService) exchangeGoogle(ctx context.Context, code, redirectURI string) (oauthProfile, error) {
	form := url.Values{}
	form.Set("client_id", s.cfg.GoogleClientID)
	form.Set("client_secret", s.cfg.GoogleClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)

	var token struct {
		IDToken string `json:"id_token"`
	}
	if err := s.postForm(ctx, s.googleBaseURL+"/token", form, nil, &token); err != nil {
		return oauthProfile{}, err
	}
	if token.IDToken == "" {
		return oauthProfile{}, fmt.Errorf("%w: google code exchange returned no id_token", ErrInvalidToken)
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

// GoogleIDToken signs in a native app user with a Google identity token.
// The token is validated against Google's tokeninfo endpoint; its
// audience must be one of the configured client ids.
func (s *AuthService) GoogleIDToken(ctx context.Context, idToken string) (*AuthResult, error) {
	resp, err := s.httpClient.Get(s.googleTokenInfo + "?id_token=" + url.QueryEscape(idToken))
	if err != nil {
		return nil, fmt.Errorf("tokeninfo request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ErrInvalidToken
	}

	var info struct {
		Aud           string `json:"aud"`
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse tokeninfo: %w", err)
	}

	validAud := false
	for _, aud := range []string{s.cfg.GoogleClientID, s.cfg.GoogleAndroidClientID, s.cfg.GoogleIOSClientID} {
		if aud != "" && info.Aud == aud {
			validAud = true
			break
		}
	}
	if !validAud || info.EmailVerified != "true" {
		return nil, ErrInvalidToken
	}

	user, err := s.UpsertUser(ctx, oauthProfile{
		Provider:   "google",
		ProviderID: info.Sub,
		Email:      info.Email,
		Name:       info.Name,
	})
	if err != nil {
		return nil, err
	}
	return &AuthResult{APIKey: user.APIKey, UserID: user.ID}, nil
}

// appleClientSecret builds the ES256 client-secret JWT Apple requires in
// place of a static secret.
func (s *AuthService) appleClientSecret() (string, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(s.cfg.ApplePrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse apple private key: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.cfg.AppleTeamID,
		"sub": s.cfg.AppleServiceID,
		"aud": "https://appleid.apple.com",
		"iat": now.Unix(),
		"exp": now.Add(180 * 24 * time.Hour).Unix(),
	})
	token.Header["kid"] = s.cfg.AppleKeyID

	return token.SignedString(key)
}

func (s *AuthService) exchangeApple(ctx context.Context, code, redirectURI string) (oauthProfile, error) {
	secret, err := s.appleClientSecret()
	if err != nil {
		return oauthProfile{}, err
	}

	form := url.Values{}
	form.Set("client_id", s.cfg.AppleServiceID)
	form.Set("client_secret", secret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)

	var token struct {
		IDToken string `json:"id_token"`
		Error   string `json:"error"`
	}
	if err := s.postForm(ctx, s.appleBaseURL+"/auth/token", form, nil, &token); err != nil {
		return oauthProfile{}, err
	}
	if token.IDToken == "" {
		return oauthProfile{}, fmt.Errorf("%w: apple code exchange failed (%s)", ErrInvalidToken, token.Error)
	}

	claims, err := parseJWTClaims(token.IDToken)
	if err != nil {
		return oauthProfile{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	// Apple never returns a display name in the token.
	return oauthProfile{
		Provider:   "apple",
		ProviderID: claims["sub"],
		Email:      claims["email"],
		Name:       "Apple User",
	}, nil
}

// AppleIDToken signs in a native app user with an Apple identity token.
// Apple has no tokeninfo endpoint; the claims are parsed and the
// audience checked against the configured service id.
func (s *AuthService) AppleIDToken(ctx context.Context, idToken string) (*AuthResult, error) {
	claims, err := parseJWTClaims(idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	if claims["sub"] == "" || (s.cfg.AppleServiceID != "" && claims["aud"] != s.cfg.AppleServiceID) {
		return nil, ErrInvalidToken
	}

	user, err := s.UpsertUser(ctx, oauthProfile{
		Provider:   "apple",
		ProviderID: claims["sub"],
		Email:      claims["email"],
		Name:       "Apple User",
	})
	if err != nil {
		return nil, err
	}
	return &AuthResult{APIKey: user.APIKey, UserID: user.ID}, nil
}

// parseJWTClaims decodes the payload segment of a JWT without verifying
// the signature. Callers must only use it on tokens received directly
// from the issuing provider over TLS.
func parseJWTClaims(token string) (map[string]string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("malformed token payload")
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("malformed token claims")
	}
	claims := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			claims[k] = s
		}
	}
	return claims, nil
}

func (s *AuthService) postForm(ctx context.Context, endpoint string, form url.Values, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", endpoint, err)
	}
	return nil
}

func (s *AuthService) getJSON(ctx context.Context, endpoint, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
