package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/medchat/internal/chat"
	"github.com/npezzotti/medchat/internal/database"
	"github.com/npezzotti/medchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   string
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "empty user ID",
			ctx:      WithUserId(context.Background(), ""),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), "u1"),
			userId:   "u1",
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %q", tc.userId)
		})
	}
}

func TestJwtRoundTrip(t *testing.T) {
	app := newTestApp(t, nil, nil)

	token, err := app.createJwtForSession(alice, time.Minute)
	require.NoError(t, err)

	userId, err := app.extractUserIdFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, alice.Id, userId)

	parsed, err := app.verifyToken(token)
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, types.RoleDoctor, claims[roleClaim])
}

func TestExtractUserIdFromToken_Invalid(t *testing.T) {
	app := newTestApp(t, nil, nil)
	other := newTestApp(t, nil, nil)
	other.signingKey = []byte("another-key")

	expired, err := app.createJwtForSession(alice, -time.Minute)
	require.NoError(t, err)

	foreign, err := other.createJwtForSession(alice, time.Minute)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		expClaim: time.Now().Add(time.Minute).Unix(),
	}).SignedString(app.signingKey)
	require.NoError(t, err)

	tcases := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expired},
		{name: "wrong signing key", token: foreign},
		{name: "missing user id claim", token: noUser},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := app.extractUserIdFromToken(tc.token)
			assert.Error(t, err)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	tcases := []struct {
		name    string
		header  string
		cookie  string
		token   string
		wantErr bool
	}{
		{name: "bearer header", header: "Bearer abc", token: "abc"},
		{name: "lower case scheme", header: "bearer abc", token: "abc"},
		{name: "cookie", cookie: "xyz", token: "xyz"},
		{name: "header wins over cookie", header: "Bearer abc", cookie: "xyz", token: "abc"},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
		{name: "empty bearer", header: "Bearer ", wantErr: true},
		{name: "nothing", wantErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tc.cookie})
			}

			token, err := tokenFromRequest(req)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.token, token)
		})
	}
}

func TestLogin(t *testing.T) {
	hash, err := hashPassword("secret")
	require.NoError(t, err)

	dbUser := database.User{
		Id:           alice.Id,
		Name:         alice.Name,
		EmailAddress: alice.EmailAddress,
		Role:         alice.Role,
		PasswordHash: hash,
	}

	tcases := []struct {
		name        string
		body        string
		mockUser    *database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:     "successful login",
			body:     `{"email":"alice@example.com","password":"secret"}`,
			mockUser: &dbUser,
		},
		{
			name:        "invalid json",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "missing password",
			body:        `{"email":"alice@example.com"}`,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "unknown email",
			body:        `{"email":"alice@example.com","password":"secret"}`,
			mockUser:    &database.User{},
			mockErr:     database.ErrNotFound,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "wrong password",
			body:        `{"email":"alice@example.com","password":"wrong"}`,
			mockUser:    &dbUser,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "store failure",
			body:        `{"email":"alice@example.com","password":"secret"}`,
			mockUser:    &database.User{},
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != nil {
				mockRepo.On("GetUserByEmail", mock.Anything, alice.EmailAddress).Return(*tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, nil, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body))
			app.login(rr, req)

			if tc.expectedErr != nil {
				assertApiError(t, rr, tc.expectedErr)
				assert.Nil(t, findCookie(rr, tokenCookieKey))
				return
			}

			require.Equal(t, http.StatusOK, rr.Code)

			var resp LoginResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, alice, resp.User)
			assert.NotEmpty(t, resp.Token)

			cookie := findCookie(rr, tokenCookieKey)
			require.NotNil(t, cookie)
			assert.Equal(t, resp.Token, cookie.Value)
			assert.True(t, cookie.HttpOnly)
			assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

			userId, err := app.extractUserIdFromToken(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, alice.Id, userId)
		})
	}
}

func TestSession(t *testing.T) {
	tcases := []struct {
		name        string
		userId      string
		mockErr     error
		expectedErr *ApiError
	}{
		{name: "returns the caller", userId: alice.Id},
		{name: "unauthorized", expectedErr: NewUnauthorizedError()},
		{name: "user removed", userId: alice.Id, mockErr: chat.ErrNotFound, expectedErr: NewNotFoundError()},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &chat.MockService{}
			defer svc.AssertExpectations(t)

			if tc.userId != "" {
				svc.On("GetUser", mock.Anything, tc.userId).Return(alice, tc.mockErr).Once()
			}

			app := newTestApp(t, svc, nil)
			rr := httptest.NewRecorder()
			req := authedRequest(http.MethodGet, "/api/auth/session", nil, tc.userId)
			app.session(rr, req)

			if tc.expectedErr != nil {
				assertApiError(t, rr, tc.expectedErr)
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var user types.User
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
			assert.Equal(t, alice, user)
		})
	}
}

func TestLogout(t *testing.T) {
	app := newTestApp(t, nil, nil)
	rr := httptest.NewRecorder()
	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", &bytes.Buffer{}))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()), "expected cookie to be expired")
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)
	assert.True(t, verifyPassword(hash, "secret"))
	assert.False(t, verifyPassword(hash, "other"))
}
