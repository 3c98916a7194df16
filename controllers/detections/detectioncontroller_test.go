package detections

import (
	"BUREAU/models"
	"BUREAU/services/tracking"
	"BUREAU/testutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db       *gorm.DB
	notifier *testutil.Notifier
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: testutil.NewDB(t), notifier: &testutil.Notifier{}}

	svc := tracking.New(tracking.Deps{
		DB:       f.db,
		Store:    testutil.NewStore(),
		Detector: &testutil.Detector{Disabled: true},
		Notifier: f.notifier,
		Log:      zap.NewNop(),

		MatchThreshold: tracking.DefaultMatchThreshold,
	})
	ctl := &Controller{Tracking: svc, Log: zap.NewNop()}

	r := gin.New()
	g := r.Group("/detections", testutil.AsUser(models.User{ID: "u1", Username: "operator"}))
	g.GET("", ctl.ListHandler)
	g.POST("", ctl.IngestHandler)
	g.GET("/recent", ctl.RecentHandler)
	g.GET("/:id", ctl.GetHandler)
	g.PATCH("/:id/status", ctl.UpdateStatusHandler)
	f.router = r
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) ingest(t *testing.T, fields map[string]string, snapshot []byte) (*httptest.ResponseRecorder, models.Detection) {
	t.Helper()
	var file *testutil.File
	if snapshot != nil {
		file = &testutil.File{Field: "snapshot", Name: "frame.jpg", Data: snapshot}
	}
	body, ct := testutil.Multipart(t, fields, file)
	req := httptest.NewRequest(http.MethodPost, "/detections", body)
	req.Header.Set("Content-Type", ct)

	w := f.do(req)
	var det models.Detection
	if w.Code == http.StatusCreated {
		testutil.DecodeJSON(t, w, &det)
	}
	return w, det
}

func TestIngestAndVerify(t *testing.T) {
	f := newFixture(t)
	person := models.MissingPerson{CaseID: "ID-5001", Name: "Jane Roe", Contact: testutil.String("+15550199")}
	require.NoError(t, f.db.Create(&person).Error)

	w, det := f.ingest(t, map[string]string{
		"camera_id":  "CAM-7",
		"location":   "Harbor Gate",
		"latitude":   "33.74",
		"longitude":  "-118.27",
		"case_id":    "ID-5001",
		"confidence": "0.91",
	}, []byte("jpeg"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.StatusPending, det.Status)
	assert.Equal(t, "Jane Roe", *det.PersonName)
	require.NotNil(t, det.SnapshotURL)

	for i := 0; i < 2; i++ {
		w = f.do(httptest.NewRequest(http.MethodPatch, "/detections/"+det.ID+"/status?status=verified", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	assert.Len(t, f.notifier.Alerts(), 1)

	w = f.do(httptest.NewRequest(http.MethodGet, "/detections/"+det.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Detection
	testutil.DecodeJSON(t, w, &got)
	assert.Equal(t, models.StatusVerified, got.Status)
	assert.True(t, got.SMSSent)
}

func TestIngest_Errors(t *testing.T) {
	f := newFixture(t)

	w, _ := f.ingest(t, map[string]string{"case_id": "ID-0000"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.ingest(t, map[string]string{"confidence": "2"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.ingest(t, map[string]string{"latitude": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t)
	_, det := f.ingest(t, map[string]string{"camera_id": "CAM-1"}, nil)

	w := f.do(httptest.NewRequest(http.MethodPatch, "/detections/"+det.ID+"/status", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(httptest.NewRequest(http.MethodPatch, "/detections/unknown/status?status=verified", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/detections/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndRecent(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		w, _ := f.ingest(t, map[string]string{"camera_id": "CAM"}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	var list []models.Detection
	w := f.do(httptest.NewRequest(http.MethodGet, "/detections?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeJSON(t, w, &list)
	assert.Len(t, list, 5)

	w = f.do(httptest.NewRequest(http.MethodGet, "/detections/recent", nil))
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeJSON(t, w, &list)
	assert.Len(t, list, recentLimit)

	w = f.do(httptest.NewRequest(http.MethodGet, "/detections?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
