package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/keyroute/keyroute-server/src/middleware"
	"github.com/keyroute/keyroute-server/src/models"
	"github.com/keyroute/keyroute-server/src/repositories/mock"
	"github.com/keyroute/keyroute-server/src/services"
	"golang.org/x/crypto/bcrypt"
)

func setTestJWTSecret(t *testing.T) {
	t.Helper()
	originalSecret := middleware.JWTSecret
	if err := middleware.SetJWTSecret("test-secret-for-unit-tests-32ch!"); err != nil {
		t.Fatalf("SetJWTSecret failed: %v", err)
	}
	t.Cleanup(func() { middleware.JWTSecret = originalSecret })
}

func adminHandlerWithUser(t *testing.T, username, password string) *AdminHandler {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	admin := &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
		IsActive:     true,
	}

	repo := mock.NewAdminRepository()
	repo.GetByUsernameFunc = func(ctx context.Context, u string) (*models.AdminUser, error) {
		if u != username {
			return nil, errors.New("not found")
		}
		return admin, nil
	}

	return NewAdminHandler(services.NewAdminServiceWithRepo(repo))
}

func TestHandleAdminLogin_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setTestJWTSecret(t)

	handler := adminHandlerWithUser(t, "admin", "correct-horse-battery")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/login",
		strings.NewReader(`{"username":"admin","password":"correct-horse-battery"}`))

	handler.HandleAdminLogin(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response AdminLoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Token == "" {
		t.Error("expected token in response")
	}
	if response.ExpiresAt <= time.Now().Unix() {
		t.Error("expected future expiry")
	}

	// Token is also set as an HttpOnly cookie
	cookies := w.Result().Cookies()
	found := false
	for _, cookie := range cookies {
		if cookie.Name == "admin_token" && cookie.Value == response.Token {
			found = true
			if !cookie.HttpOnly {
				t.Error("expected HttpOnly cookie")
			}
		}
	}
	if !found {
		t.Error("expected admin_token cookie")
	}

	// The issued token passes validation
	claims, err := middleware.ValidateAdminToken(response.Token)
	if err != nil {
		t.Fatalf("ValidateAdminToken failed: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username 'admin' in claims, got %q", claims.Username)
	}
}

func TestHandleAdminLogin_WrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setTestJWTSecret(t)

	handler := adminHandlerWithUser(t, "admin", "correct-horse-battery")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/login",
		strings.NewReader(`{"username":"admin","password":"wrong"}`))

	handler.HandleAdminLogin(c)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestHandleAdminLogin_InvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewAdminHandler(services.NewAdminServiceWithRepo(mock.NewAdminRepository()))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/login",
		strings.NewReader(`{"username":"admin"}`)) // missing password

	handler.HandleAdminLogin(c)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleAdminLogout_ClearsCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewAdminHandler(services.NewAdminServiceWithRepo(mock.NewAdminRepository()))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/logout", nil)

	handler.HandleAdminLogout(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "admin_token" {
			if cookie.MaxAge >= 0 {
				t.Error("expected expired admin_token cookie")
			}
			return
		}
	}
	t.Error("expected admin_token cookie to be cleared")
}

func TestHandleAdminStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewAdminHandler(services.NewAdminServiceWithRepo(mock.NewAdminRepository()))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	c.Set("admin_id", uuid.New().String())
	c.Set("username", "testadmin")

	handler.HandleAdminStatus(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response AdminStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.Authenticated || response.Username != "testadmin" {
		t.Errorf("unexpected status response: %+v", response)
	}
}
