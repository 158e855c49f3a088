package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/pable/versus-overlay/internal/model"
)

// fakeSheet serves values.get responses keyed by a substring of the range.
func fakeSheet(t *testing.T, ranges map[string][][]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v4/spreadsheets/sheet-id/values/") {
			http.NotFound(w, r)
			return
		}
		for key, values := range ranges {
			if strings.Contains(r.URL.Path, key) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"range":          key,
					"majorDimension": "ROWS",
					"values":         values,
				})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"range":"x","majorDimension":"ROWS"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, seedsRange string) *Client {
	t.Helper()
	c, err := NewClientWithOptions(context.Background(), "sheet-id", "Data!A1:R", seedsRange,
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return c
}

func TestFetchRows(t *testing.T) {
	srv := fakeSheet(t, map[string][][]interface{}{
		"Data": {
			{"1-1", "1-2", "", "", "", "R1", "alice", "0:01:00", "0:02:00", "", "", "", "bob", "0:01:10", "0:02:30"},
			{"1-1", "", "", "", "", "R2", "carol", "0:01:05"},
		},
	})
	c := newTestClient(t, srv, "")

	rows, err := c.FetchRows(context.Background())

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0][model.ColWinner])
	assert.Equal(t, "0:02:30", rows[0][model.ColLoserTime+1])
	assert.Equal(t, "", rows[1][model.ColLoser])
	assert.Equal(t, "0:01:05", rows[1][model.ColWinnerTime])
}

func TestFetchRows_Empty(t *testing.T) {
	srv := fakeSheet(t, nil)
	c := newTestClient(t, srv, "")

	_, err := c.FetchRows(context.Background())

	assert.True(t, errors.Is(err, ErrNoRows))
}

func TestFetchRows_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, "")

	_, err := c.FetchRows(context.Background())

	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoRows))
}

func TestFetchSeeds(t *testing.T) {
	srv := fakeSheet(t, map[string][][]interface{}{
		"Seeds": {
			{"alice", float64(1)},
			{"bob", "8"},
			{"incomplete"},
			{"", "3"},
		},
	})
	c := newTestClient(t, srv, "Seeds!A2:B")

	seeds, err := c.FetchSeeds(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.Seeds{"alice": "1", "bob": "8"}, seeds)
}

func TestFetchSeeds_NotConfigured(t *testing.T) {
	srv := fakeSheet(t, nil)
	c := newTestClient(t, srv, "")

	seeds, err := c.FetchSeeds(context.Background())

	require.NoError(t, err)
	assert.Empty(t, seeds)
}

func TestRowsFromValues_TypesAndPadding(t *testing.T) {
	rows := RowsFromValues([][]interface{}{
		{float64(3), nil, true, " 1-4 "},
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "3", rows[0][0])
	assert.Equal(t, "", rows[0][1])
	assert.Equal(t, "true", rows[0][2])
	assert.Equal(t, "1-4", rows[0][3])
	assert.Equal(t, "", rows[0][model.RowWidth-1])
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := ExtractSpreadsheetID("https://docs.google.com/spreadsheets/d/1f_Dz-gDY/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1f_Dz-gDY", id)

	id, err = ExtractSpreadsheetID("1f_DzgDYrAcB")
	require.NoError(t, err)
	assert.Equal(t, "1f_DzgDYrAcB", id)

	_, err = ExtractSpreadsheetID("not a sheet")
	assert.Error(t, err)

	_, err = ExtractSpreadsheetID("")
	assert.Error(t, err)
}

func TestAuthorizer_NoCachedToken(t *testing.T) {
	a := &Authorizer{TokenPath: filepath.Join(t.TempDir(), "token.json")}

	_, err := a.CachedClient(context.Background())

	assert.True(t, errors.Is(err, ErrNoToken))
}

func TestAuthorizer_SaveAndReuseToken(t *testing.T) {
	dir := t.TempDir()
	a := &Authorizer{TokenPath: filepath.Join(dir, "token.json")}
	cfg := &oauth2.Config{ClientID: "cid", ClientSecret: "secret"}

	require.NoError(t, a.SaveToken(cfg, &oauth2.Token{RefreshToken: "refresh"}))

	data, err := os.ReadFile(a.TokenPath)
	require.NoError(t, err)
	var saved authorizedUser
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "authorized_user", saved.Type)
	assert.Equal(t, "refresh", saved.RefreshToken)

	c, err := a.CachedClient(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestAuthorizer_SaveTokenNeedsRefreshToken(t *testing.T) {
	a := &Authorizer{TokenPath: filepath.Join(t.TempDir(), "token.json")}

	err := a.SaveToken(&oauth2.Config{}, &oauth2.Token{AccessToken: "short-lived"})

	assert.Error(t, err)
}

func TestRedirectHandler_RepeatedHitsDoNotBlock(t *testing.T) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	h := redirectHandler("st", codeCh, errCh)

	hit := func(query string) int {
		done := make(chan int, 1)
		go func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?"+query, nil))
			done <- rec.Code
		}()
		select {
		case code := <-done:
			return code
		case <-time.After(2 * time.Second):
			t.Fatalf("handler blocked on %q", query)
			return 0
		}
	}

	assert.Equal(t, http.StatusBadRequest, hit("state=other&code=x"))
	assert.Equal(t, http.StatusOK, hit("state=st&code=first"))
	assert.Equal(t, http.StatusOK, hit("state=st&code=second"))
	assert.Equal(t, http.StatusBadRequest, hit("state=st&error=access_denied"))
	assert.Equal(t, http.StatusBadRequest, hit("state=st&error=access_denied"))

	assert.Equal(t, "first", <-codeCh)
	require.Error(t, <-errCh)
}
