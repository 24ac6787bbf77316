package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"github.com/bitfantasy/invoiceflow/internal/service"
	"github.com/bitfantasy/invoiceflow/internal/sse"
	"github.com/bitfantasy/invoiceflow/internal/testutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuthTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	logger := zap.NewNop()
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:             testutil.JWTSecret,
			Issuer:             "invoiceflow",
			AccessTokenExpire:  time.Hour,
			RefreshTokenExpire: 24 * time.Hour,
		},
	}
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, testutil.NewMemObjectStore(), nil, sse.NewHub(logger), cfg, logger)
	handlers := NewHandlers(services, sse.NewHub(logger), cfg, logger)

	r := testutil.SetupRouter()
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
	}
	return r, db
}

func registerPayload() map[string]string {
	return map[string]string{
		"email":             "admin@acme.com",
		"password":          "s3cret-pass",
		"display_name":      "Org Admin",
		"organization_name": "Acme Corp",
	}
}

func TestRegisterCreatesOrgAndAdmin(t *testing.T) {
	r, db := setupAuthTest(t)

	w := testutil.DoRequest(r, "POST", "/api/v1/auth/register", registerPayload(), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	user := data["user"].(map[string]interface{})
	org := data["organization"].(map[string]interface{})

	if user["role"] != entity.RoleAdmin {
		t.Errorf("first user should be admin, got %v", user["role"])
	}
	if user["organization_id"] != org["id"] {
		t.Errorf("user not linked to organization: %v vs %v", user["organization_id"], org["id"])
	}

	var member entity.OrgMember
	if err := db.Where("organization_id = ? AND user_id = ?", org["id"], user["id"]).First(&member).Error; err != nil {
		t.Errorf("membership row missing: %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	r, _ := setupAuthTest(t)

	if w := testutil.DoRequest(r, "POST", "/api/v1/auth/register", registerPayload(), ""); w.Code != http.StatusCreated {
		t.Fatalf("first register failed: %d", w.Code)
	}
	w := testutil.DoRequest(r, "POST", "/api/v1/auth/register", registerPayload(), "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLogin(t *testing.T) {
	r, _ := setupAuthTest(t)
	if w := testutil.DoRequest(r, "POST", "/api/v1/auth/register", registerPayload(), ""); w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	w := testutil.DoRequest(r, "POST", "/api/v1/auth/login",
		map[string]string{"email": "admin@acme.com", "password": "s3cret-pass"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	tokens := data["tokens"].(map[string]interface{})
	if tokens["access_token"] == "" || tokens["refresh_token"] == "" {
		t.Errorf("expected token pair, got %v", tokens)
	}
	// 密码散列绝不外泄
	user := data["user"].(map[string]interface{})
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password_hash must not appear in responses")
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/auth/login",
		map[string]string{"email": "admin@acme.com", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/auth/login",
		map[string]string{"email": "ghost@acme.com", "password": "whatever"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", w.Code)
	}
}
