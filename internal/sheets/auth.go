package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

// Scope is the only scope the overlay needs.
const Scope = sheets.SpreadsheetsReadonlyScope

// ErrNoToken is returned by CachedClient when no reusable token is on disk.
var ErrNoToken = errors.New("no cached token")

// Authorizer produces an authorized HTTP client for the Sheets API.
type Authorizer struct {
	// CredentialsPath is the OAuth client ("installed" or "web") or
	// service-account JSON downloaded from the Cloud console.
	CredentialsPath string
	// TokenPath caches the refresh token after the first interactive login.
	TokenPath string
	// ServiceAccount selects JWT auth from CredentialsPath instead of OAuth.
	ServiceAccount bool
	// Out receives the consent URL during interactive authorization.
	Out io.Writer
}

// authorizedUser is the on-disk token format, readable by
// google.CredentialsFromJSON.
type authorizedUser struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// Client returns an authorized client, reusing the cached token when present
// and falling back to a one-time interactive authorization.
func (a *Authorizer) Client(ctx context.Context) (*http.Client, error) {
	if a.ServiceAccount {
		return a.serviceAccountClient(ctx)
	}
	c, err := a.CachedClient(ctx)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNoToken) {
		return nil, err
	}
	return a.Interactive(ctx)
}

// CachedClient builds a client from the cached token without prompting.
func (a *Authorizer) CachedClient(ctx context.Context) (*http.Client, error) {
	data, err := os.ReadFile(a.TokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

func (a *Authorizer) serviceAccountClient(ctx context.Context) (*http.Client, error) {
	data, err := os.ReadFile(a.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	config, err := google.JWTConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return config.Client(ctx), nil
}

func (a *Authorizer) oauthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(a.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	config, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return config, nil
}

// Interactive runs the loopback OAuth flow: it prints a consent URL, waits
// for the browser redirect, exchanges the code and caches the refresh token.
func (a *Authorizer) Interactive(ctx context.Context) (*http.Client, error) {
	config, err := a.oauthConfig()
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}
	config.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := fmt.Sprintf("versus-%d", time.Now().UnixNano())
	verifier := oauth2.GenerateVerifier()
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler:           redirectHandler(state, codeCh, errCh),
	}
	go srv.Serve(ln)
	defer srv.Close()

	out := a.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "Open this URL to authorize sheet access:\n\n  %s\n\n", authURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := a.SaveToken(config, tok); err != nil {
		return nil, err
	}
	return config.Client(ctx, tok), nil
}

// SaveToken writes the refresh token in authorized_user form to TokenPath.
func (a *Authorizer) SaveToken(config *oauth2.Config, tok *oauth2.Token) error {
	if tok.RefreshToken == "" {
		return errors.New("token has no refresh token; revoke access and authorize again")
	}
	payload, err := json.Marshal(authorizedUser{
		Type:         "authorized_user",
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RefreshToken: tok.RefreshToken,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.TokenPath, payload, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// redirectHandler receives the OAuth redirect. Only the first result is
// delivered; later hits such as a browser refresh are answered and dropped.
func redirectHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if msg := q.Get("error"); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization denied: %s", msg):
			default:
			}
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this tab.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})
}
