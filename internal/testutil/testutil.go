package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_invoiceflow"
	JWTSecret  = "invoiceflow-test-jwt-secret"
	TestOrgID  = "test-org-001"
)

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
// Skips the test if no database is reachable.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "invoiceflow")
	password := getEnv("DB_PASSWORD", "invoiceflow123")
	dbname := getEnv("DB_NAME", "invoiceflow")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("test database not available: %v", err)
	}
	if sqlDB, err := setupDB.DB(); err == nil {
		if err := sqlDB.Ping(); err != nil {
			sqlDB.Close()
			t.Skipf("test database not reachable: %v", err)
		}
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in DSN so all pooled connections use the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&entity.User{},
		&entity.Organization{},
		&entity.OrgMember{},
		&entity.Invoice{},
		&entity.Attachment{},
		&entity.ActivityLog{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, email, orgID, role string) string {
	now := time.Now()
	claims := middleware.JWTClaims{
		UserID: userID,
		Name:   name,
		Email:  email,
		OrgID:  orgID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "invoiceflow",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a default admin test user
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "Test Admin", "admin@test.com", TestOrgID, "admin")
}

// ReviewerTestToken returns a token for a reviewer test user
func ReviewerTestToken() string {
	return GenerateTestToken("test-user-002", "Test Reviewer", "reviewer@test.com", TestOrgID, "reviewer")
}

// DoRequest executes a JSON HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// MultipartFile a file part for multipart test requests
type MultipartFile struct {
	Field       string
	FileName    string
	ContentType string
	Content     []byte
}

// DoMultipartRequest executes a multipart request with a JSON data field and files
func DoMultipartRequest(r *gin.Engine, method, path string, data interface{}, files []MultipartFile, token string) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if data != nil {
		jsonBytes, _ := json.Marshal(data)
		mw.WriteField("data", string(jsonBytes))
	}
	for _, f := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.FileName)}
		h["Content-Type"] = []string{f.ContentType}
		part, _ := mw.CreatePart(h)
		part.Write(f.Content)
	}
	mw.Close()

	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedTestOrg creates the default test organization
func SeedTestOrg(t *testing.T, db *gorm.DB) *entity.Organization {
	t.Helper()
	org := &entity.Organization{
		ID:        TestOrgID,
		Name:      "Test Org",
		CreatedBy: "test-user-001",
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("Failed to seed test org: %v", err)
	}
	return org
}

// SeedTestUser creates a test user in the database
func SeedTestUser(t *testing.T, db *gorm.DB, id, name, email, role string) *entity.User {
	t.Helper()
	user := &entity.User{
		ID:             id,
		Email:          email,
		PasswordHash:   "x",
		DisplayName:    name,
		Role:           role,
		OrganizationID: TestOrgID,
		Status:         "active",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed test user: %v", err)
	}
	return user
}

// SeedTestInvoice creates a test invoice
func SeedTestInvoice(t *testing.T, db *gorm.DB, id, number, vendor, status string, amount float64) *entity.Invoice {
	t.Helper()
	inv := &entity.Invoice{
		ID:             id,
		OrganizationID: TestOrgID,
		InvoiceNumber:  number,
		VendorName:     vendor,
		Amount:         decimal.NewFromFloat(amount),
		Currency:       "USD",
		InvoiceDate:    time.Now().AddDate(0, 0, -7),
		Status:         status,
		CreatedBy:      "test-user-001",
	}
	if err := db.Create(inv).Error; err != nil {
		t.Fatalf("Failed to seed test invoice: %v", err)
	}
	return inv
}

// MemObjectStore in-memory object store fake
type MemObjectStore struct {
	mu       sync.Mutex
	Objects  map[string][]byte
	PutCalls int
	FailOn   string // object path whose Put should fail
}

// NewMemObjectStore creates an empty fake store
func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{Objects: make(map[string][]byte)}
}

func (m *MemObjectStore) Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.FailOn != "" && pathMatches(objectPath, m.FailOn) {
		return fmt.Errorf("simulated put failure for %s", objectPath)
	}
	m.Objects[objectPath] = data
	return nil
}

func (m *MemObjectStore) Remove(ctx context.Context, objectPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, objectPath)
	return nil
}

func (m *MemObjectStore) PresignedURL(ctx context.Context, objectPath, fileName string) (string, error) {
	return "https://storage.test/" + objectPath, nil
}

// Count number of stored objects
func (m *MemObjectStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}

func pathMatches(objectPath, pattern string) bool {
	return len(pattern) > 0 && bytes.Contains([]byte(objectPath), []byte(pattern))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
