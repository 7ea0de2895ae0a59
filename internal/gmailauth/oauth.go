package gmailauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/platform/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	stateTTL     = 10 * time.Minute
	statePurpose = "gmail_oauth"
)

var errInvalidState = errors.New("invalid oauth state")

// NewOAuthConfig builds the Google OAuth client for read-only Gmail access.
func NewOAuthConfig(cfg config.GoogleOAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GetGoogleClientID(),
		ClientSecret: cfg.GetGoogleClientSecret(),
		RedirectURL:  cfg.GetGoogleRedirectURL(),
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
}

// signState binds the OAuth round trip to the operator that started it. The
// callback is public, so the state carries its own proof.
func signState(secret, operator string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":     operator,
		"purpose": statePurpose,
		"iat":     now.Unix(),
		"exp":     now.Add(stateTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func verifyState(secret, state string) (string, error) {
	token, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidState
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidState
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != statePurpose {
		return "", errInvalidState
	}
	sub, _ := claims["sub"].(string)
	return sub, nil
}

// profileEmail looks up the address of the account that granted tok.
func profileEmail(ctx context.Context, oauth *oauth2.Config, tok *oauth2.Token) (string, error) {
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauth.Client(ctx, tok)))
	if err != nil {
		return "", fmt.Errorf("create gmail service: %w", err)
	}
	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get gmail profile: %w", err)
	}
	return profile.EmailAddress, nil
}
