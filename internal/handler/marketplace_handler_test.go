package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"neighborsos/internal/events"
	"neighborsos/internal/mailer"
	"neighborsos/internal/models"
	"neighborsos/internal/repository/postgres"
	"neighborsos/internal/service"
)

type marketplaceFixture struct {
	router  chi.Router
	db      *gorm.DB
	limiter *stubChecker
	charity *models.Charity
}

func newMarketplaceFixture(t *testing.T) *marketplaceFixture {
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

	charity := &models.Charity{
		ID:           uuid.New(),
		Name:         "Harbor Food Bank",
		ContactEmail: "contact@harbor.org",
		Address:      "1 Pier Rd",
		Verified:     true,
	}
	require.NoError(t, db.Create(charity).Error)

	marketplace := service.NewMarketplaceService(
		postgres.NewNeedRepository(db),
		postgres.NewFamilyRepository(db),
		postgres.NewCharityRepository(db),
		nil,
		nil,
		events.NopPublisher{},
		mailer.NopSender{},
	)
	charitySvc := service.NewCharityService(
		postgres.NewCharityRepository(db),
		postgres.NewStoryRepository(db),
		events.NopPublisher{},
		mailer.NopSender{},
	)

	limiter := &stubChecker{allowAt: 10, reset: time.Now().Add(time.Hour)}

	h := NewMarketplaceHandler(marketplace, charitySvc, limiter, nil)
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	return &marketplaceFixture{router: router, db: db, limiter: limiter, charity: charity}
}

func (f *marketplaceFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func (f *marketplaceFixture) postNeed(t *testing.T, item string, qty int) uuid.UUID {
	t.Helper()
	w := f.do("POST", "/urgent-needs/", map[string]interface{}{
		"charity_id": f.charity.ID,
		"item_name":  item,
		"quantity":   qty,
		"category":   "food",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id, err := uuid.Parse(resp.Data.(map[string]interface{})["id"].(string))
	require.NoError(t, err)
	return id
}

func TestNeedLifecycleOverHTTP(t *testing.T) {
	f := newMarketplaceFixture(t)

	needID := f.postNeed(t, "Canned soup", 2)

	w := f.do("GET", "/urgent-needs/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Len(t, listing.Data, 1)

	// Claim everything; the need leaves the listing.
	w = f.do("POST", "/urgent-needs/"+needID.String()+"/claim", map[string]interface{}{
		"donor_email": "donor@example.com",
		"quantity":    2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))

	w = f.do("GET", "/urgent-needs/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Empty(t, listing.Data)

	// A late claim conflicts.
	w = f.do("POST", "/urgent-needs/"+needID.String()+"/claim", map[string]interface{}{
		"donor_email": "late@example.com",
		"quantity":    1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestClaimRateLimit(t *testing.T) {
	f := newMarketplaceFixture(t)
	f.limiter.allowAt = 1

	needID := f.postNeed(t, "Blankets", 5)

	w := f.do("POST", "/urgent-needs/"+needID.String()+"/claim", map[string]interface{}{
		"donor_email": "donor@example.com",
		"quantity":    1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do("POST", "/urgent-needs/"+needID.String()+"/claim", map[string]interface{}{
		"donor_email": "donor@example.com",
		"quantity":    1,
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp["error"])

	// The denied claim consumed nothing.
	var need models.UrgentNeed
	require.NoError(t, f.db.Take(&need, "id = ?", needID).Error)
	assert.Equal(t, 4, need.Quantity)
}

func TestClaimValidationOverHTTP(t *testing.T) {
	f := newMarketplaceFixture(t)

	needID := f.postNeed(t, "Blankets", 2)

	w := f.do("POST", "/urgent-needs/not-a-uuid/claim", map[string]interface{}{
		"donor_email": "donor@example.com",
		"quantity":    1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/urgent-needs/"+needID.String()+"/claim", map[string]interface{}{
		"donor_email": "donor@example.com",
		"quantity":    5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/urgent-needs/"+uuid.NewString()+"/claim", map[string]interface{}{
		"donor_email": "donor@example.com",
		"quantity":    1,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateNeedRejectsUnvettedCharity(t *testing.T) {
	f := newMarketplaceFixture(t)

	unvetted := &models.Charity{
		ID:           uuid.New(),
		Name:         "Unvetted Org",
		ContactEmail: "unvetted@example.com",
	}
	require.NoError(t, f.db.Create(unvetted).Error)

	w := f.do("POST", "/urgent-needs/", map[string]interface{}{
		"charity_id": unvetted.ID,
		"item_name":  "Blankets",
		"quantity":   5,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFamilySponsorshipOverHTTP(t *testing.T) {
	f := newMarketplaceFixture(t)

	w := f.do("POST", "/families/", map[string]interface{}{
		"charity_id":     f.charity.ID,
		"family_name":    "Rivera",
		"children_count": 3,
		"amount_needed":  200,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	familyID := created.Data.(map[string]interface{})["id"].(string)

	w = f.do("POST", "/families/"+familyID+"/sponsor", map[string]interface{}{
		"donor_name":  "Sam",
		"donor_email": "sam@example.com",
		"amount":      200,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var sponsored Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sponsored))
	family := sponsored.Data.(map[string]interface{})
	assert.Equal(t, models.FamilyStatusFullyAdopted, family["status"])

	w = f.do("POST", "/families/"+familyID+"/sponsor", map[string]interface{}{
		"donor_name":  "Late",
		"donor_email": "late@example.com",
		"amount":      10,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListCharitiesShowsOnlyVerified(t *testing.T) {
	f := newMarketplaceFixture(t)

	require.NoError(t, f.db.Create(&models.Charity{
		ID:           uuid.New(),
		Name:         "Unvetted Org",
		ContactEmail: "unvetted@example.com",
	}).Error)

	w := f.do("GET", "/charities/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	charities := resp.Data.([]interface{})
	require.Len(t, charities, 1)
	assert.Equal(t, "Harbor Food Bank", charities[0].(map[string]interface{})["name"])
}
