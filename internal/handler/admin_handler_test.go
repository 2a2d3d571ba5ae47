package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"neighborsos/internal/events"
	"neighborsos/internal/gate"
	"neighborsos/internal/identity"
	"neighborsos/internal/mailer"
	"neighborsos/internal/models"
	"neighborsos/internal/repository/postgres"
	"neighborsos/internal/service"
)

type fakeResolver struct {
	emails map[string]string
}

func (f *fakeResolver) ResolveEmail(_ context.Context, token string) (string, error) {
	if email, ok := f.emails[token]; ok {
		return email, nil
	}
	return "", identity.ErrUnauthenticated
}

type adminFixture struct {
	router chi.Router
	db     *gorm.DB
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	require.NoError(t, db.Create(&models.Admin{
		ID:    uuid.New(),
		Email: "ops@neighborsos.org",
	}).Error)

	access := service.NewAccessService(
		postgres.NewAccessGrantRepository(db),
		postgres.NewAdminRepository(db),
		postgres.NewEmailSignupRepository(db),
	)
	charities := service.NewCharityService(
		postgres.NewCharityRepository(db),
		postgres.NewStoryRepository(db),
		events.NopPublisher{},
		mailer.NopSender{},
	)

	resolver := &fakeResolver{emails: map[string]string{
		"admin-token":   "ops@neighborsos.org",
		"visitor-token": "visitor@example.com",
	}}

	h := NewAdminHandler(access, charities, resolver)
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	return &adminFixture{router: router, db: db}
}

func (f *adminFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.AddCookie(&http.Cookie{Name: gate.SessionCookie, Value: token})
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestAdminOnly(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do("GET", "/early-access/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do("GET", "/early-access/", "stale-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do("GET", "/early-access/", "visitor-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do("GET", "/early-access/", "admin-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGrantLifecycle(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do("POST", "/early-access/", "admin-token", map[string]string{
		"email": "Beta@Example.com",
		"notes": "first wave",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	grant := created.Data.(map[string]interface{})
	assert.Equal(t, "beta@example.com", grant["email"])

	// Duplicate is a conflict.
	w = f.do("POST", "/early-access/", "admin-token", map[string]string{
		"email": "beta@example.com",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Bad email is a bad request.
	w = f.do("POST", "/early-access/", "admin-token", map[string]string{
		"email": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Revoke, then revoking again is 404.
	w = f.do("DELETE", "/early-access/"+grant["id"].(string), "admin-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("DELETE", "/early-access/"+grant["id"].(string), "admin-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCharityReview(t *testing.T) {
	f := newAdminFixture(t)

	charity := &models.Charity{
		ID:           uuid.New(),
		Name:         "Harbor Food Bank",
		ContactEmail: "contact@harbor.org",
	}
	require.NoError(t, f.db.Create(charity).Error)

	w := f.do("GET", "/charities/pending", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Len(t, pending.Data, 1)

	w = f.do("POST", "/charities/"+charity.ID.String()+"/approve", "admin-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/charities/pending", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Empty(t, pending.Data)

	w = f.do("POST", "/charities/"+uuid.NewString()+"/approve", "admin-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateStoryEndpoint(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do("POST", "/stories", "admin-token", map[string]string{
		"title":        "A warm winter",
		"story":        "<p>Coats for 40 kids.</p>",
		"charity_name": "Harbor Food Bank",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do("POST", "/stories", "admin-token", map[string]string{
		"title": "",
		"story": "",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
