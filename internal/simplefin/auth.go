package simplefin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/leakscan/internal/common"
)

// AuthState is the claimed access URL saved between runs.
type AuthState struct {
	ClaimedAt time.Time `json:"claimed_at"`
	AccessURL string    `json:"access_url"`
	TokenHint string    `json:"token_hint"`
}

// loadOrClaim returns the saved access URL, claiming token when none is saved.
func loadOrClaim(ctx context.Context, client *http.Client, cfg Config, logger *slog.Logger) (*AuthState, error) {
	if auth, err := loadAuthState(cfg.StateFile); err == nil && auth.AccessURL != "" {
		logger.Debug("Using saved SimpleFIN access URL",
			"claimed_at", auth.ClaimedAt.Format(time.DateOnly),
			"state_file", cfg.StateFile)
		return auth, nil
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: no saved SimpleFIN access and no setup token", common.ErrMissingConfig)
	}

	logger.Info("Claiming SimpleFIN setup token")
	accessURL, err := claimToken(ctx, client, cfg.Token)
	if err != nil {
		return nil, err
	}

	auth := &AuthState{
		AccessURL: accessURL,
		ClaimedAt: time.Now().UTC(),
		TokenHint: tokenHint(cfg.Token),
	}
	if err := saveAuthState(cfg.StateFile, auth); err != nil {
		return nil, err
	}
	logger.Info("Saved SimpleFIN access URL", "state_file", cfg.StateFile)
	return auth, nil
}

// claimToken exchanges a base64 setup token for an access URL. A setup token
// can be claimed only once.
func claimToken(ctx context.Context, client *http.Client, token string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(token)
		if err != nil {
			return "", fmt.Errorf("%w: SimpleFIN token is not base64: %w", common.ErrInvalidConfig, err)
		}
	}
	claimURL := string(decoded)
	if !isHTTPURL(claimURL) {
		return "", fmt.Errorf("%w: SimpleFIN token does not decode to a URL", common.ErrInvalidConfig)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create claim request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to claim SimpleFIN access: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read claim response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to claim SimpleFIN access: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	accessURL := strings.TrimSpace(string(body))
	if !isHTTPURL(accessURL) {
		return "", fmt.Errorf("invalid access URL received")
	}
	return accessURL, nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func loadAuthState(path string) (*AuthState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var auth AuthState
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &auth, nil
}

func saveAuthState(path string, auth *AuthState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode auth state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save auth state: %w", err)
	}
	return nil
}

// tokenHint keeps the ends of a token so a saved state can be matched to it.
func tokenHint(token string) string {
	if len(token) > 16 {
		return token[:8] + "..." + token[len(token)-8:]
	}
	return "short_token"
}
