package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"timetable/internal/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL}), server
}

func TestLogin(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/login", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "alice", r.FormValue("username"))
		assert.Equal(t, "s3cret", r.FormValue("password"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"opaque-token"}`))
	})

	res := client.Login(context.Background(), "alice", "s3cret")
	require.True(t, res.OK())
	assert.Equal(t, "opaque-token", res.Value.AccessToken)
	assert.Equal(t, "Bearer", res.Value.TokenType)
	assert.True(t, res.Value.Expiry.IsZero())
}

func TestLoginReadsJWTExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"` + signed + `"}`))
	})

	res := client.Login(context.Background(), "alice", "pw")
	require.True(t, res.OK())
	assert.True(t, exp.Equal(res.Value.Expiry))
}

func TestLoginFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"error body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"bad credentials"}`))
		}},
		{"no token", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestServer(t, tc.handler)

			res := client.Login(context.Background(), "alice", "wrong")
			require.False(t, res.OK())
			assert.Equal(t, model.KindAuthentication, res.Err.Kind)
			assert.Equal(t, model.MsgInvalidCredentials, res.Err.Message)
		})
	}
}

func TestLoginTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client := NewClient(Config{BaseURL: server.URL})
	server.Close()

	res := client.Login(context.Background(), "alice", "pw")
	require.False(t, res.OK())
	assert.Equal(t, model.KindAuthentication, res.Err.Kind)
}

func TestFetchEvents(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/programs/bmm/targetgroups/bmm4/weeks/kw42/events", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Write([]byte(`[
			{"id": 17, "day": "thu", "shortname": "Math", "note": "", "rooms": ["D11"],
			 "lecturers": [3, "7"], "timeslots": ["x-1", "x-2"]}
		]`))
	})

	res := client.FetchEvents(context.Background(), &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}, "bmm", 4, 42)
	require.True(t, res.OK())
	require.Len(t, res.Value, 1)

	ev := res.Value[0]
	assert.Equal(t, model.ID("17"), ev.ID)
	assert.Equal(t, "thu", ev.Day)
	assert.Equal(t, "Math", ev.ShortName)
	assert.Equal(t, []model.ID{"3", "7"}, ev.Lecturers)
	assert.Equal(t, []string{"x-1", "x-2"}, ev.Timeslots)
}

func TestFetchLecturers(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/lecturers", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id": 3, "name": "Prof. Ada"}, {"id": "7", "name": "Dr. Bob"}]`))
	})

	res := client.FetchLecturers(context.Background(), &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	require.True(t, res.OK())
	assert.Equal(t, []model.Lecturer{{ID: "3", Name: "Prof. Ada"}, {ID: "7", Name: "Dr. Bob"}}, res.Value)
}

func TestFetchFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"error body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"token expired"}`))
		}},
		{"malformed", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"id":`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestServer(t, tc.handler)
			token := &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}

			events := client.FetchEvents(context.Background(), token, "bmm", 4, 42)
			require.False(t, events.OK())
			assert.Equal(t, model.KindFetch, events.Err.Kind)
			assert.Equal(t, model.MsgNotAuthenticated, events.Err.Message)

			lecturers := client.FetchLecturers(context.Background(), token)
			require.False(t, lecturers.OK())
			assert.Equal(t, model.KindFetch, lecturers.Err.Kind)
		})
	}
}

func TestFetchWithoutTokenNeverCallsServer(t *testing.T) {
	called := false
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	res := client.FetchLecturers(context.Background(), nil)
	assert.False(t, res.OK())
	assert.False(t, called)
}

func TestLinks(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.example", WebURL: "https://web.example/"})

	assert.Equal(t, "https://web.example/#/programs/bmm/targetgroups/bmm4/weeks/kw42",
		client.WebLink("bmm", 4, 42))
	assert.Equal(t, "https://web.example/#/programs/bmm/targetgroups/bmm4/weeks/kw42/show/17",
		client.EventLink("bmm", 4, 42, "17"))

	fallback := NewClient(Config{BaseURL: "https://api.example"})
	assert.Equal(t, "https://api.example/#/programs/bmm/targetgroups/bmm4/weeks/kw1", fallback.WebLink("bmm", 4, 1))
}
