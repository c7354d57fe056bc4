package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	token, err := s.Issue("ops@example.com", time.Hour)
	require.NoError(t, err)
	user, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user)

	other := NewSigner([]byte("different"))
	other.now = s.now
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify(token + "0")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return time.Unix(1700000000, 0).Add(2 * time.Hour) }
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = s.Issue(" ", time.Hour)
	assert.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	signer := NewSigner([]byte("k"))
	admin, _ := signer.Issue("admin", time.Hour)
	viewer, _ := signer.Issue("viewer", time.Hour)

	r := gin.New()
	r.GET("/secure", RequireAdmin(signer, NewAllowlist([]string{"admin", " "})), func(c *gin.Context) {
		c.String(http.StatusOK, User(c))
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"not admin", "Bearer " + viewer, http.StatusForbidden},
		{"admin", "bearer " + admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "admin", w.Body.String())
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(ErrExpiredToken))
	assert.False(t, IsAuthError(ErrForbidden))
}
