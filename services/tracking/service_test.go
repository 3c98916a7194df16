package tracking

import (
	"BUREAU/helper"
	"BUREAU/models"
	"BUREAU/services/events"
	"BUREAU/services/learning"
	"BUREAU/testutil"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.DetectionEvent
}

func (r *recordingSink) Publish(_ context.Context, ev events.DetectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fixture struct {
	db       *gorm.DB
	store    *testutil.Store
	detector *testutil.Detector
	notifier *testutil.Notifier
	sink     *recordingSink
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       testutil.NewDB(t),
		store:    testutil.NewStore(),
		detector: &testutil.Detector{Encoding: models.FaceEncoding{0, 1}},
		notifier: &testutil.Notifier{},
		sink:     &recordingSink{},
	}
	learner := learning.New(f.db, f.detector, f.store, learning.Options{StoredWeight: 0.7}, zap.NewNop())
	f.svc = New(Deps{
		DB:       f.db,
		Store:    f.store,
		Detector: f.detector,
		Notifier: f.notifier,
		Learner:  learner,
		Sink:     f.sink,
		Log:      zap.NewNop(),

		MatchThreshold: DefaultMatchThreshold,
	})
	return f
}

func (f *fixture) person(t *testing.T, caseID string, contact *string, enc models.FaceEncoding) models.MissingPerson {
	t.Helper()
	p := models.MissingPerson{CaseID: caseID, Name: "Person " + caseID, Contact: contact, Encoding: enc}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) reload(t *testing.T, id string) models.Detection {
	t.Helper()
	var d models.Detection
	require.NoError(t, f.db.First(&d, "id = ?", id).Error)
	return d
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, models.StatusPending, InitialStatus(nil, 0.7))
	assert.Equal(t, models.StatusPending, InitialStatus(testutil.Float(0.71), 0.7))
	assert.Equal(t, models.StatusDismissed, InitialStatus(testutil.Float(0.7), 0.7))
	assert.Equal(t, models.StatusDismissed, InitialStatus(testutil.Float(0.2), 0.7))
}

func TestIngest_WithFieldMatch(t *testing.T) {
	f := newFixture(t)
	p := f.person(t, "ID-2001", nil, nil)

	det, err := f.svc.Ingest(context.Background(), IngestInput{
		CameraID:   "CAM-01",
		Location:   "Main St",
		Latitude:   testutil.Float(34.05),
		Longitude:  testutil.Float(-118.24),
		Snapshot:   []byte("jpeg"),
		CaseID:     testutil.String("ID-2001"),
		Confidence: testutil.Float(0.93),
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, det.Status)
	require.NotNil(t, det.PersonID)
	assert.Equal(t, p.ID, *det.PersonID)
	assert.Equal(t, p.Name, *det.PersonName)
	assert.Equal(t, "ID-2001", *det.CaseID)
	require.NotNil(t, det.SnapshotURL)
	assert.True(t, f.store.Has("detections/ID-2001_"))
	assert.False(t, det.SMSSent)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, events.DetectionCreated, f.sink.events[0].Type)
}

func TestIngest_LowConfidenceIsDismissed(t *testing.T) {
	f := newFixture(t)
	f.person(t, "ID-2002", nil, nil)

	det, err := f.svc.Ingest(context.Background(), IngestInput{
		CaseID:     testutil.String("ID-2002"),
		Confidence: testutil.Float(0.4),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDismissed, det.Status)
}

func TestIngest_UnknownCase(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), IngestInput{CaseID: testutil.String("ID-0000")})
	assert.ErrorIs(t, err, ErrUnknownCase)
}

func TestIngest_InvalidConfidence(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), IngestInput{Confidence: testutil.Float(1.5)})
	assert.ErrorIs(t, err, ErrInvalidConfidence)
}

func TestIngest_MatchesByEncoding(t *testing.T) {
	f := newFixture(t)
	f.person(t, "ID-2003", nil, models.FaceEncoding{1, 0})
	closest := f.person(t, "ID-2004", nil, models.FaceEncoding{0.1, 1})
	f.person(t, "ID-2005", nil, models.FaceEncoding{1, 0, 0})

	det, err := f.svc.Ingest(context.Background(), IngestInput{Snapshot: []byte("jpeg")})
	require.NoError(t, err)

	require.NotNil(t, det.PersonID)
	assert.Equal(t, closest.ID, *det.PersonID)
	require.NotNil(t, det.Confidence)
	assert.Greater(t, *det.Confidence, 0.9)
	assert.Equal(t, models.StatusPending, det.Status)
}

func TestIngest_AntiCorrelatedEncodingScoresZero(t *testing.T) {
	f := newFixture(t)
	f.svc.Detector = &testutil.Detector{Encoding: models.FaceEncoding{-1, 0}}
	p := f.person(t, "ID-2006", nil, models.FaceEncoding{1, 0})

	det, err := f.svc.Ingest(context.Background(), IngestInput{Snapshot: []byte("jpeg")})
	require.NoError(t, err)

	require.NotNil(t, det.PersonID)
	assert.Equal(t, p.ID, *det.PersonID)
	require.NotNil(t, det.Confidence)
	assert.GreaterOrEqual(t, *det.Confidence, 0.0)
	assert.LessOrEqual(t, *det.Confidence, 1.0)
	assert.Equal(t, models.StatusDismissed, det.Status)
	assert.InDelta(t, 0, *f.reload(t, det.ID).Confidence, 1e-9)
}

func TestIngest_ZeroThresholdKeepsWeakMatchPending(t *testing.T) {
	f := newFixture(t)
	f.person(t, "ID-2007", nil, nil)
	svc := New(Deps{DB: f.db, Store: f.store, Log: zap.NewNop(), MatchThreshold: 0})

	det, err := svc.Ingest(context.Background(), IngestInput{
		CaseID:     testutil.String("ID-2007"),
		Confidence: testutil.Float(0.1),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, svc.MatchThreshold)
	assert.Equal(t, models.StatusPending, det.Status)
}

func TestIngest_UnmatchedWithoutDetector(t *testing.T) {
	f := newFixture(t)
	f.svc.Detector = &testutil.Detector{Disabled: true}

	det, err := f.svc.Ingest(context.Background(), IngestInput{Snapshot: []byte("jpeg")})
	require.NoError(t, err)
	assert.Nil(t, det.PersonID)
	assert.Equal(t, models.StatusPending, det.Status)
	assert.True(t, f.store.Has("detections/UNMATCHED_"))
}

func TestIngest_UploadFailureKeepsDetection(t *testing.T) {
	f := newFixture(t)
	f.store.PutErr = errors.New("disk full")

	det, err := f.svc.Ingest(context.Background(), IngestInput{CameraID: "CAM-02", Snapshot: []byte("jpeg")})
	require.NoError(t, err)
	assert.Nil(t, det.SnapshotURL)
	assert.Equal(t, "CAM-02", *f.reload(t, det.ID).CameraID)
}

func TestUpdateStatus_VerifyTwiceSendsOneAlert(t *testing.T) {
	f := newFixture(t)
	f.person(t, "ID-3001", testutil.String("+15550100"), nil)
	det, err := f.svc.Ingest(context.Background(), IngestInput{
		CaseID:     testutil.String("ID-3001"),
		Confidence: testutil.Float(0.9),
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
	require.NoError(t, err)
	assert.True(t, updated.SMSSent)

	_, err = f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
	require.NoError(t, err)

	alerts := f.notifier.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "+15550100", alerts[0].Contact)
	assert.Contains(t, alerts[0].Message, "ID-3001")
	assert.True(t, f.reload(t, det.ID).SMSSent)
}

func TestUpdateStatus_ConcurrentVerifySendsOneAlert(t *testing.T) {
	f := newFixture(t)
	f.person(t, "ID-3002", testutil.String("+15550101"), nil)
	det, err := f.svc.Ingest(context.Background(), IngestInput{CaseID: testutil.String("ID-3002")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.notifier.Alerts(), 1)
}

func TestUpdateStatus_NotificationFailureKeepsFlagFalse(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = errors.New("gateway down")
	f.person(t, "ID-3003", testutil.String("+15550102"), nil)
	det, err := f.svc.Ingest(context.Background(), IngestInput{CaseID: testutil.String("ID-3003")})
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, updated.Status)
	assert.False(t, updated.SMSSent)

	stored := f.reload(t, det.ID)
	assert.Equal(t, models.StatusVerified, stored.Status)
	assert.False(t, stored.SMSSent)
}

// statusAtSend records the stored status of the detection each time an alert
// goes out.
type statusAtSend struct {
	db     *gorm.DB
	id     string
	seen   []string
	mu   sync.Mutex
}

func (n *statusAtSend) SendAlert(ctx context.Context, _, _ string) error {
	var d models.Detection
	if err := n.db.WithContext(ctx).First(&d, "id = ?", n.id).Error; err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, d.Status)
	return nil
}

func TestUpdateStatus_StatusStoredBeforeAlert(t *testing.T) {
	f := newFixture(t)
	f.person(t, "ID-3007", testutil.String("+15550103"), nil)
	det, err := f.svc.Ingest(context.Background(), IngestInput{CaseID: testutil.String("ID-3007")})
	require.NoError(t, err)

	notifier := &statusAtSend{db: f.db, id: det.ID}
	f.svc.Notifier = notifier

	updated, err := f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
	require.NoError(t, err)
	assert.True(t, updated.SMSSent)
	assert.Equal(t, []string{models.StatusVerified}, notifier.seen)

	stored := f.reload(t, det.ID)
	assert.Equal(t, models.StatusVerified, stored.Status)
	assert.True(t, stored.SMSSent)
}

func TestUpdateStatus_NoContactNoAlert(t *testing.T) {
	f := newFixture(t)
	f.person(t, "ID-3004", nil, nil)
	det, err := f.svc.Ingest(context.Background(), IngestInput{CaseID: testutil.String("ID-3004")})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.Alerts())
	assert.False(t, f.reload(t, det.ID).SMSSent)
}

func TestUpdateStatus_VerifiedMergesEncoding(t *testing.T) {
	f := newFixture(t)
	p := f.person(t, "ID-3005", nil, models.FaceEncoding{1, 0})
	det, err := f.svc.Ingest(context.Background(), IngestInput{
		CaseID:     testutil.String("ID-3005"),
		Confidence: testutil.Float(0.95),
		Snapshot:   []byte("jpeg"),
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
	require.NoError(t, err)

	var got models.MissingPerson
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	require.Len(t, got.Encoding, 2)
	assert.InDelta(t, 0.7, got.Encoding[0], 1e-9)
	assert.InDelta(t, 0.3, got.Encoding[1], 1e-9)
}

func TestUpdateStatus_DimensionMismatchStillUpdatesStatus(t *testing.T) {
	f := newFixture(t)
	p := f.person(t, "ID-3006", nil, models.FaceEncoding{1, 0, 0})
	det, err := f.svc.Ingest(context.Background(), IngestInput{
		CaseID:   testutil.String("ID-3006"),
		Snapshot: []byte("jpeg"),
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), det.ID, models.StatusVerified)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, updated.Status)

	var got models.MissingPerson
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, models.FaceEncoding{1, 0, 0}, got.Encoding)
}

func TestUpdateStatus_OpenStatusAndErrors(t *testing.T) {
	f := newFixture(t)
	det, err := f.svc.Ingest(context.Background(), IngestInput{CameraID: "CAM-03"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), det.ID, "escalated")
	require.NoError(t, err)
	assert.Equal(t, "escalated", updated.Status)
	assert.Equal(t, "escalated", f.reload(t, det.ID).Status)

	_, err = f.svc.UpdateStatus(context.Background(), "missing", models.StatusVerified)
	assert.ErrorIs(t, err, ErrDetectionNotFound)

	_, err = f.svc.UpdateStatus(context.Background(), det.ID, "  ")
	assert.ErrorIs(t, err, ErrEmptyStatus)
}

func TestList_RanksByDistance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	far, err := f.svc.Ingest(ctx, IngestInput{CameraID: "far", Latitude: testutil.Float(10), Longitude: testutil.Float(10)})
	require.NoError(t, err)
	nowhere, err := f.svc.Ingest(ctx, IngestInput{CameraID: "nowhere"})
	require.NoError(t, err)
	near, err := f.svc.Ingest(ctx, IngestInput{CameraID: "near", Latitude: testutil.Float(0.1), Longitude: testutil.Float(0.1)})
	require.NoError(t, err)

	got, err := f.svc.List(ctx, 50, &helper.Coordinate{Lat: 0, Lon: 0})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, near.ID, got[0].ID)
	assert.Equal(t, far.ID, got[1].ID)
	assert.Equal(t, nowhere.ID, got[2].ID)

	limited, err := f.svc.List(ctx, 2, nil)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAlertMessage(t *testing.T) {
	det := models.Detection{
		PersonName: testutil.String("Jane Roe"),
		CaseID:     testutil.String("ID-4242"),
		Location:   testutil.String("Union Station"),
		Confidence: testutil.Float(0.87),
	}
	msg := AlertMessage(det)
	assert.Contains(t, msg, "Jane Roe")
	assert.Contains(t, msg, "ID-4242")
	assert.Contains(t, msg, "Union Station")
	assert.Contains(t, msg, "87%")
}
