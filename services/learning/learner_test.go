package learning

import (
	"BUREAU/helper"
	"BUREAU/models"
	"BUREAU/services/detector"
	"BUREAU/testutil"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seedPerson(t *testing.T, db *gorm.DB, enc models.FaceEncoding) models.MissingPerson {
	t.Helper()
	p := models.MissingPerson{CaseID: "ID-1001", Name: "Test Person", Encoding: enc}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func storedEncoding(t *testing.T, db *gorm.DB, id string) models.FaceEncoding {
	t.Helper()
	var p models.MissingPerson
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p.Encoding
}

func verifiedDetection(t *testing.T, store *testutil.Store, personID string) models.Detection {
	t.Helper()
	url, err := store.Put(context.Background(), []byte("jpeg"), "detections/snap.jpg", "image/jpeg")
	require.NoError(t, err)
	return models.Detection{ID: "det-1", PersonID: &personID, SnapshotURL: &url, Status: models.StatusVerified}
}

func TestLearn_MergesObservedEncoding(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewStore()
	person := seedPerson(t, db, models.FaceEncoding{1, 0})
	det := &testutil.Detector{Encoding: models.FaceEncoding{0, 1}}

	l := New(db, det, store, Options{StoredWeight: 0.7}, zap.NewNop())
	require.NoError(t, l.Learn(context.Background(), verifiedDetection(t, store, person.ID)))

	got := storedEncoding(t, db, person.ID)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.7, got[0], 1e-9)
	assert.InDelta(t, 0.3, got[1], 1e-9)
	assert.Equal(t, 0, l.locks.Len())
}

func TestLearn_ZeroWeightAdoptsObservation(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewStore()
	person := seedPerson(t, db, models.FaceEncoding{1, 0})
	det := &testutil.Detector{Encoding: models.FaceEncoding{0, 1}}

	l := New(db, det, store, Options{StoredWeight: 0}, zap.NewNop())
	require.NoError(t, l.Learn(context.Background(), verifiedDetection(t, store, person.ID)))

	got := storedEncoding(t, db, person.ID)
	require.Len(t, got, 2)
	assert.InDelta(t, 0, got[0], 1e-9)
	assert.InDelta(t, 1, got[1], 1e-9)
}

func TestLearn_DimensionMismatchLeavesEncoding(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewStore()
	person := seedPerson(t, db, models.FaceEncoding{1, 0})
	det := &testutil.Detector{Encoding: models.FaceEncoding{0, 1, 0}}

	l := New(db, det, store, Options{StoredWeight: helper.DefaultStoredWeight}, zap.NewNop())
	err := l.Learn(context.Background(), verifiedDetection(t, store, person.ID))
	require.Error(t, err)

	assert.Equal(t, models.FaceEncoding{1, 0}, storedEncoding(t, db, person.ID))
}

func TestLearn_SkipReasons(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewStore()
	withEncoding := seedPerson(t, db, models.FaceEncoding{1, 0})
	noEncoding := models.MissingPerson{CaseID: "ID-1002", Name: "No Photo"}
	require.NoError(t, db.Create(&noEncoding).Error)

	missingURL := "mem://detections/gone.jpg"

	tests := []struct {
		name     string
		detector *testutil.Detector
		det      func() models.Detection
		want     error
	}{
		{
			name:     "no linked person",
			detector: &testutil.Detector{Encoding: models.FaceEncoding{0, 1}},
			det:      func() models.Detection { return models.Detection{ID: "d"} },
			want:     ErrNoPerson,
		},
		{
			name:     "no snapshot",
			detector: &testutil.Detector{Encoding: models.FaceEncoding{0, 1}},
			det: func() models.Detection {
				return models.Detection{ID: "d", PersonID: &withEncoding.ID}
			},
			want: ErrNoSnapshot,
		},
		{
			name:     "detector unavailable",
			detector: &testutil.Detector{Disabled: true},
			det:      func() models.Detection { return verifiedDetection(t, store, withEncoding.ID) },
			want:     detector.ErrUnavailable,
		},
		{
			name:     "person without encoding",
			detector: &testutil.Detector{Encoding: models.FaceEncoding{0, 1}},
			det:      func() models.Detection { return verifiedDetection(t, store, noEncoding.ID) },
			want:     ErrNoStoredEncoding,
		},
		{
			name:     "no face in snapshot",
			detector: &testutil.Detector{},
			det:      func() models.Detection { return verifiedDetection(t, store, withEncoding.ID) },
			want:     ErrNoFace,
		},
		{
			name:     "unreachable snapshot",
			detector: &testutil.Detector{Encoding: models.FaceEncoding{0, 1}},
			det: func() models.Detection {
				return models.Detection{ID: "d", PersonID: &withEncoding.ID, SnapshotURL: &missingURL}
			},
			want: testutil.ErrObjectNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(db, tt.detector, store, Options{StoredWeight: helper.DefaultStoredWeight}, zap.NewNop())
			err := l.Learn(context.Background(), tt.det())
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, models.FaceEncoding{1, 0}, storedEncoding(t, db, withEncoding.ID))
		})
	}
}
