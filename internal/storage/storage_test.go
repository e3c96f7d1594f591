package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rf-watch/gnss-sentry/internal/classify"
	"github.com/rf-watch/gnss-sentry/internal/detect"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "sentry.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestCreateAndFetchSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "rooftop-1", "/var/run/gnss/monitor.sock", map[string]any{"fftSize": 2048})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id == 0 {
		t.Fatal("session ID should be non-zero")
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.Receiver != "rooftop-1" || sess.Source != "/var/run/gnss/monitor.sock" {
		t.Errorf("session = %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"fftSize":2048}` {
		t.Errorf("config = %v, want serialized JSON", sess.Config)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id {
		t.Errorf("sessions = %+v, want one entry with ID %d", sessions, id)
	}
}

func TestStoreAndReadVerdicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "rooftop-1", "-", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	verdicts := []classify.Verdict{
		{Severity: classify.SeverityNone, Stats: classify.Stats{Satellites: 9, AvgCN0DBHz: 44.5}},
		{
			Jammed:     true,
			Severity:   classify.SeverityHeavy,
			Type:       classify.TypeBroadbandNoise,
			Method:     classify.MethodThreshold,
			Confidence: 0.5,
			Stats: classify.Stats{
				Satellites:         6,
				TrackedSatellites:  4,
				AvgCN0DBHz:         24.75,
				CN0StdDB:           0.5,
				DopplerStdHz:       310.5,
				DopplerVariationHz: 12.25,
			},
		},
	}
	for i, v := range verdicts {
		if _, err := s.StoreVerdict(ctx, id, base.Add(time.Duration(i)*time.Second), v); err != nil {
			t.Fatalf("StoreVerdict %d: %v", i, err)
		}
	}

	got, err := s.Verdicts(ctx, id)
	if err != nil {
		t.Fatalf("Verdicts: %v", err)
	}
	if len(got) != len(verdicts) {
		t.Fatalf("got %d verdicts, want %d", len(got), len(verdicts))
	}

	if got[0].Jammed || got[0].Severity != string(classify.SeverityNone) {
		t.Errorf("first verdict = %+v", got[0])
	}
	second := got[1]
	if !second.Jammed || second.Type != string(classify.TypeBroadbandNoise) || second.Method != string(classify.MethodThreshold) {
		t.Errorf("second verdict = %+v", second)
	}
	if second.AvgCN0DBHz != 24.75 || second.Satellites != 6 || second.TrackedSatellites != 4 {
		t.Errorf("second verdict stats = %+v", second)
	}
	if second.DopplerStdHz != 310.5 || second.DopplerVariationHz != 12.25 {
		t.Errorf("second verdict doppler stats = %+v", second)
	}
	if !second.Timestamp.After(got[0].Timestamp) {
		t.Errorf("verdicts not ordered by time: %v then %v", got[0].Timestamp, second.Timestamp)
	}
}

func TestStoreReport(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "rooftop-1", "capture.iq", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	report := &detect.Report{
		Timestamp: time.Now().UTC(),
		Detections: map[detect.Kind]detect.Result{
			detect.KindBroadbandNoise: {
				Kind:       detect.KindBroadbandNoise,
				Detected:   true,
				Confidence: 0.9,
			},
			detect.KindLinearSweep: {
				Kind: detect.KindLinearSweep,
				Err:  "transform failed",
			},
		},
	}
	if err := s.StoreReport(ctx, id, report); err != nil {
		t.Fatalf("StoreReport: %v", err)
	}

	// Rows went through the write connection; count them via the read
	// connection to cover both paths.
	db, err := s.getReadDB()
	if err != nil {
		t.Fatalf("getReadDB: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detections WHERE session_id = ?", id).Scan(&n); err != nil {
		t.Fatalf("counting detections: %v", err)
	}
	if n != len(report.Detections) {
		t.Errorf("stored %d detections, want %d", n, len(report.Detections))
	}
}

func TestStoreReport_Empty(t *testing.T) {
	s := newTestStore(t)
	if err := s.StoreReport(context.Background(), 1, nil); err != nil {
		t.Errorf("nil report should be a no-op, got %v", err)
	}
	if err := s.StoreReport(context.Background(), 1, &detect.Report{}); err != nil {
		t.Errorf("empty report should be a no-op, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "sentry.db"))
	if _, err := s.CreateSession(context.Background(), "r", "s", nil); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
