package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPValidatorAccepts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		require.NoError(t, decodeJSON(r, &req))
		require.Equal(t, "poker", req.Realm)
		if req.Token == "good" {
			w.Write([]byte(`{"valid":true,"player_id":"p1","name":"Alice"}`))
			return
		}
		w.Write([]byte(`{"valid":false}`))
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL)
	id, err := v.Validate(context.Background(), "good", "poker")
	require.NoError(t, err)
	require.Equal(t, "p1", id.PlayerID)
	require.Equal(t, "Alice", id.Name)

	_, err = v.Validate(context.Background(), "bad", "poker")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorStatusMapping(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL)
	_, err := v.Validate(context.Background(), "tok", "poker")
	require.ErrorIs(t, err, ErrInvalidToken)

	status = http.StatusServiceUnavailable
	_, err = v.Validate(context.Background(), "tok", "poker")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPValidatorUnreachable(t *testing.T) {
	v := NewHTTPValidator("http://127.0.0.1:1/validate")
	_, err := v.Validate(context.Background(), "tok", "poker")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPValidatorEmptyToken(t *testing.T) {
	v := NewHTTPValidator("http://unused.invalid")
	_, err := v.Validate(context.Background(), "", "poker")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestStaticValidator(t *testing.T) {
	v := NewStaticValidator(map[string]Identity{
		"tok-1": {PlayerID: "p1", Name: "Alice"},
	})
	id, err := v.Validate(context.Background(), "tok-1", "blackjack")
	require.NoError(t, err)
	require.Equal(t, "Alice", id.Name)

	_, err = v.Validate(context.Background(), "nope", "blackjack")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNoopValidator(t *testing.T) {
	var v NoopValidator
	id, err := v.Validate(context.Background(), "dev-user", "poker")
	require.NoError(t, err)
	require.Equal(t, "dev-user", id.PlayerID)

	_, err = v.Validate(context.Background(), "", "poker")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
