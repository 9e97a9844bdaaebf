package jade

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostJSONSendsBodyAndDecodesResponse(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = b
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sig":"abc","ske":"def"}`))
	}))
	defer srv.Close()

	resp, err := postJSON(context.Background(), []string{srv.URL}, map[string]string{"hello": "world"})
	require.NoError(t, err)

	var hp HandshakeParams
	require.NoError(t, json.Unmarshal(resp, &hp))
	require.Equal(t, "abc", hp.Sig)
	require.Equal(t, "def", hp.Ske)
	require.JSONEq(t, `{"hello":"world"}`, string(gotBody))
}

func TestPostJSONSendsEmptyBodyWhenDataIsNil(t *testing.T) {
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotLen = len(b)
		_, _ = w.Write([]byte(`{"encrypted_key":"ek","hmac":"mac"}`))
	}))
	defer srv.Close()

	resp, err := postJSON(context.Background(), []string{srv.URL}, nil)
	require.NoError(t, err)
	require.Zero(t, gotLen)

	var cp HandshakeCompleteParams
	require.NoError(t, json.Unmarshal(resp, &cp))
	require.Equal(t, "ek", cp.EncryptedKey)
	require.Equal(t, "mac", cp.Hmac)
}

func TestPostJSONRejectsNoURLs(t *testing.T) {
	_, err := postJSON(context.Background(), nil, nil)
	require.Error(t, err)
	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	require.Equal(t, KindNoUsableURL, jerr.Kind)
}

func TestPostJSONSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := postJSON(context.Background(), []string{srv.URL}, nil)
	require.Error(t, err)
	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	require.Equal(t, KindHTTPStatus, jerr.Kind)
}
