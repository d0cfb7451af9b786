package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"coachbook/internal/database"
	"coachbook/internal/domain/address"
	"coachbook/internal/domain/auth"
	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/card"
	"coachbook/internal/domain/group"
	"coachbook/internal/domain/notification"
	"coachbook/internal/domain/relationship"
	"coachbook/internal/middleware"
	jwtsvc "coachbook/internal/pkg/jwt"
)

type E2ETestSuite struct {
	router     *gin.Engine
	db         *gorm.DB
	jwtService *jwtsvc.Service

	coachToken   string
	studentToken string
	coach        auth.User
	student      auth.User
}

type TestResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *ErrorDetail           `json:"error,omitempty"`

	StatusCode int `json:"-"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func setupTestSuite(t *testing.T) *E2ETestSuite {
	t.Helper()

	dsn := fmt.Sprintf("file:e2e_%s?mode=memory&cache=shared", t.Name())
	db, err := database.Connect(dsn)
	require.NoError(t, err, "Failed to connect to test database")

	require.NoError(t, db.AutoMigrate(
		&auth.User{},
		&address.Address{},
		&relationship.Relationship{},
		&relationship.Category{},
		&relationship.CategoryBalance{},
		&relationship.CreditLog{},
		&card.CardTemplate{},
		&card.CardInstance{},
		&booking.Booking{},
		&booking.CoachTimeTemplate{},
		&group.GroupSession{},
		&group.GroupRegistration{},
		&notification.Notification{},
	))

	jwtService := jwtsvc.New("test_secret_key_32_characters_min", 24*time.Hour)

	users := auth.NewDirectory(db)
	addresses := address.NewDirectory(db)

	notifService := notification.NewService(notification.NewRepository(db))
	notifHandler := notification.NewHandler(notifService)

	relService := relationship.NewService(db)
	relHandler := relationship.NewHandler(relService)

	cardService := card.NewService(db)
	cardHandler := card.NewHandler(cardService)

	bookingService := booking.NewService(db, relService, cardService, users, addresses, notifService)
	bookingHandler := booking.NewHandler(bookingService)

	groupService := group.NewService(db, relService, notifService)
	groupHandler := group.NewHandler(groupService)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(middleware.Auth(jwtService))
	{
		relHandler.RegisterRoutes(protected)
		cardHandler.RegisterRoutes(protected)
		bookingHandler.RegisterRoutes(protected)
		groupHandler.RegisterRoutes(protected)
		notifHandler.RegisterRoutes(protected)
	}

	suite := &E2ETestSuite{router: r, db: db, jwtService: jwtService}

	suite.coach = auth.User{Name: "Coach", Role: "coach"}
	suite.student = auth.User{Name: "Student", Role: "student"}
	require.NoError(t, db.Create(&suite.coach).Error)
	require.NoError(t, db.Create(&suite.student).Error)

	suite.coachToken, err = jwtService.GenerateToken(suite.coach.ID, "coach")
	require.NoError(t, err)
	suite.studentToken, err = jwtService.GenerateToken(suite.student.ID, "student")
	require.NoError(t, err)

	return suite
}

func (s *E2ETestSuite) makeRequest(t *testing.T, method, path string, body interface{}, token string) *TestResponse {
	t.Helper()

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp TestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response (status %d): %s", w.Code, w.Body.String())
	}
	resp.StatusCode = w.Code
	return &resp
}

func (s *E2ETestSuite) bindRelationship(t *testing.T) (relID int64, catID int64) {
	t.Helper()

	resp := s.makeRequest(t, "POST", "/api/v1/relationships",
		map[string]interface{}{"coach_id": s.coach.ID}, s.studentToken)
	require.True(t, resp.Success)
	rel := resp.Data["relationship"].(map[string]interface{})
	relID = int64(rel["id"].(float64))

	resp = s.makeRequest(t, "GET", "/api/v1/categories", nil, s.coachToken)
	require.True(t, resp.Success)
	cats := resp.Data["categories"].([]interface{})
	require.NotEmpty(t, cats, "binding must seed the default category")
	catID = int64(cats[0].(map[string]interface{})["id"].(float64))
	return relID, catID
}

func (s *E2ETestSuite) topUp(t *testing.T, relID, catID int64, delta int) {
	t.Helper()
	resp := s.makeRequest(t, "POST", fmt.Sprintf("/api/v1/relationships/%d/adjust", relID),
		map[string]interface{}{"category_id": catID, "delta": delta}, s.coachToken)
	require.True(t, resp.Success, "top-up failed: %+v", resp.Error)
}

func (s *E2ETestSuite) available(t *testing.T, relID, catID int64) int {
	t.Helper()
	resp := s.makeRequest(t, "GET",
		fmt.Sprintf("/api/v1/relationships/%d/available?category_id=%d", relID, catID), nil, s.studentToken)
	require.True(t, resp.Success)
	return int(resp.Data["available"].(float64))
}

func TestFlowRelationshipAndLedger(t *testing.T) {
	suite := setupTestSuite(t)

	relID, catID := suite.bindRelationship(t)
	suite.topUp(t, relID, catID, 10)

	assert.Equal(t, 10, suite.available(t, relID, catID))

	resp := suite.makeRequest(t, "GET",
		fmt.Sprintf("/api/v1/relationships/%d/balances", relID), nil, suite.studentToken)
	require.True(t, resp.Success)
	balances := resp.Data["balances"].([]interface{})
	require.Len(t, balances, 1)
	assert.Equal(t, float64(10), balances[0].(map[string]interface{})["remaining"])

	resp = suite.makeRequest(t, "GET",
		fmt.Sprintf("/api/v1/relationships/%d/credit-logs", relID), nil, suite.studentToken)
	require.True(t, resp.Success)
	logs := resp.Data["logs"].([]interface{})
	require.Len(t, logs, 1)
	assert.Equal(t, "manual_adjust", logs[0].(map[string]interface{})["reason"])
}

func TestFlowBookingLifecycle(t *testing.T) {
	suite := setupTestSuite(t)

	relID, catID := suite.bindRelationship(t)
	suite.topUp(t, relID, catID, 2)

	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Minute)
	resp := suite.makeRequest(t, "POST", "/api/v1/bookings", map[string]interface{}{
		"relationship_id": relID,
		"category_id":     catID,
		"start_time":      start.Format(time.RFC3339),
		"end_time":        start.Add(time.Hour).Format(time.RFC3339),
	}, suite.studentToken)
	require.True(t, resp.Success, "booking create failed: %+v", resp.Error)
	b := resp.Data["booking"].(map[string]interface{})
	bookingID := int64(b["id"].(float64))
	assert.Equal(t, "pending", b["status_label"])

	// The pending booking reserves one of the two credits.
	assert.Equal(t, 1, suite.available(t, relID, catID))

	// The student who created it cannot confirm it.
	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/bookings/%d/transition", bookingID),
		map[string]interface{}{"action": "confirm"}, suite.studentToken)
	require.False(t, resp.Success)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/bookings/%d/transition", bookingID),
		map[string]interface{}{"action": "confirm"}, suite.coachToken)
	require.True(t, resp.Success)
	assert.Equal(t, "confirmed", resp.Data["booking"].(map[string]interface{})["status_label"])

	// Completion is coach-only and debits the credit.
	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/bookings/%d/transition", bookingID),
		map[string]interface{}{"action": "complete"}, suite.studentToken)
	require.False(t, resp.Success)

	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/bookings/%d/transition", bookingID),
		map[string]interface{}{"action": "complete"}, suite.coachToken)
	require.True(t, resp.Success)
	assert.Equal(t, "completed", resp.Data["booking"].(map[string]interface{})["status_label"])

	assert.Equal(t, 1, suite.available(t, relID, catID))

	// Both parties were notified along the way.
	resp = suite.makeRequest(t, "GET", "/api/v1/notifications", nil, suite.studentToken)
	require.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data["notifications"])
}

func TestFlowCardLifecycle(t *testing.T) {
	suite := setupTestSuite(t)

	relID, _ := suite.bindRelationship(t)

	resp := suite.makeRequest(t, "POST", "/api/v1/card-templates", map[string]interface{}{
		"name":         "10-lesson pass",
		"lesson_count": 10,
		"valid_days":   30,
	}, suite.coachToken)
	require.True(t, resp.Success, "template create failed: %+v", resp.Error)
	tplID := int64(resp.Data["template"].(map[string]interface{})["id"].(float64))

	resp = suite.makeRequest(t, "POST", "/api/v1/cards", map[string]interface{}{
		"template_id":     tplID,
		"relationship_id": relID,
	}, suite.coachToken)
	require.True(t, resp.Success, "issue failed: %+v", resp.Error)
	cardData := resp.Data["card"].(map[string]interface{})
	cardID := cardData["id"].(string)
	assert.Equal(t, "unopened", cardData["status"])

	resp = suite.makeRequest(t, "POST", "/api/v1/cards/"+cardID+"/activate", nil, suite.studentToken)
	require.True(t, resp.Success)
	assert.Equal(t, "active", resp.Data["card"].(map[string]interface{})["status"])

	// Double activation is rejected.
	resp = suite.makeRequest(t, "POST", "/api/v1/cards/"+cardID+"/activate", nil, suite.studentToken)
	require.False(t, resp.Success)
	assert.Equal(t, "ALREADY_IN_STATE", resp.Error.Code)

	resp = suite.makeRequest(t, "POST", "/api/v1/cards/"+cardID+"/deactivate", nil, suite.studentToken)
	require.True(t, resp.Success)
	assert.Equal(t, "paused", resp.Data["card"].(map[string]interface{})["status"])

	resp = suite.makeRequest(t, "POST", "/api/v1/cards/"+cardID+"/reactivate", nil, suite.studentToken)
	require.True(t, resp.Success)
	assert.Equal(t, "active", resp.Data["card"].(map[string]interface{})["status"])
}

func TestFlowGroupSession(t *testing.T) {
	suite := setupTestSuite(t)

	relID, catID := suite.bindRelationship(t)
	suite.topUp(t, relID, catID, 5)

	start := time.Now().Add(72 * time.Hour).UTC()
	resp := suite.makeRequest(t, "POST", "/api/v1/group-sessions", map[string]interface{}{
		"category_id":  catID,
		"title":        "Saturday drills",
		"start_time":   start.Format(time.RFC3339),
		"end_time":     start.Add(2 * time.Hour).Format(time.RFC3339),
		"capacity_min": 1,
		"capacity_max": 4,
		"price_mode":   "credit",
		"lesson_cost":  2,
		"auto_confirm": true,
	}, suite.coachToken)
	require.True(t, resp.Success, "session create failed: %+v", resp.Error)
	sessData := resp.Data["session"].(map[string]interface{})
	sessID := int64(sessData["id"].(float64))
	assert.Equal(t, "draft", sessData["status_label"])

	// Enrollment opens at publish.
	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/group-sessions/%d/registrations", sessID), nil, suite.studentToken)
	require.False(t, resp.Success)

	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/group-sessions/%d/publish", sessID), nil, suite.coachToken)
	require.True(t, resp.Success)

	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/group-sessions/%d/registrations", sessID), nil, suite.studentToken)
	require.True(t, resp.Success, "registration failed: %+v", resp.Error)
	regData := resp.Data["registration"].(map[string]interface{})
	regID := int64(regData["id"].(float64))
	assert.Equal(t, "confirmed", regData["status_label"])

	// Registration reserves two credits but debits nothing.
	assert.Equal(t, 3, suite.available(t, relID, catID))

	resp = suite.makeRequest(t, "POST", fmt.Sprintf("/api/v1/group-registrations/%d/check-in", regID), nil, suite.coachToken)
	require.True(t, resp.Success, "check-in failed: %+v", resp.Error)
	assert.Equal(t, "completed", resp.Data["registration"].(map[string]interface{})["status_label"])

	assert.Equal(t, 3, suite.available(t, relID, catID))

	resp = suite.makeRequest(t, "GET",
		fmt.Sprintf("/api/v1/relationships/%d/credit-logs", relID), nil, suite.studentToken)
	require.True(t, resp.Success)
	logs := resp.Data["logs"].([]interface{})
	assert.Equal(t, "group_checkin", logs[0].(map[string]interface{})["reason"])
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	suite := setupTestSuite(t)

	resp := suite.makeRequest(t, "GET", "/api/v1/bookings", nil, "")
	require.False(t, resp.Success)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}
