package trip

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boston-tracker/internal/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(mock pgxmock.PgxPoolIface) *fiber.App {
	app := fiber.New()
	svc := NewService(mock, nil, Config{})
	RegisterRoutes(app.Group("/trips"), svc, func(c *fiber.Ctx) error { return c.Next() })
	return app
}

func TestTripHandlersStartAndConflict(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("courier-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO trips`).
		WithArgs(pgxmock.AnyArg(), "courier-1").
		WillReturnRows(pgxmock.NewRows([]string{"start_time"}).AddRow(time.Now()))

	app := newTestApp(mock)

	body, _ := json.Marshal(StartRequest{CourierID: "courier-1"})
	req := httptest.NewRequest(http.MethodPost, "/trips/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, err = %v", resp.StatusCode, err)
	}
	var started Trip
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode trip: %v", err)
	}
	if started.CourierID != "courier-1" || started.Status != engine.StatusActive {
		t.Fatalf("unexpected trip %+v", started)
	}

	// the courier already has an open trip now
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("courier-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	req = httptest.NewRequest(http.MethodPost, "/trips/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}
}

func TestTripHandlersStartBadRequest(t *testing.T) {
	app := newTestApp(nil)

	req := httptest.NewRequest(http.MethodPost, "/trips/start", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestTripHandlersStop(t *testing.T) {
	mock := newMock(t)

	start := time.Now().Add(-30 * time.Minute)
	mock.ExpectQuery(`SELECT id, courier_id, status`).
		WithArgs("trip-1").
		WillReturnRows(pgxmock.NewRows(tripCols).AddRow(
			"trip-1", "courier-1", "active", start, nil,
			6.0, 0.0, 0.0, 30.0, int64(1800), 120, nil, nil, nil, nil,
		))
	mock.ExpectQuery(`UPDATE trips`).
		WithArgs("trip-1").
		WillReturnRows(pgxmock.NewRows([]string{"end_time"}).AddRow(start.Add(30 * time.Minute)))

	app := newTestApp(mock)
	req := httptest.NewRequest(http.MethodPost, "/trips/trip-1/stop", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, err = %v", resp.StatusCode, err)
	}
	var summary engine.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.FinalDistanceKm != 6.0 || summary.FinalDurationSeconds != 1800 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestTripHandlersMetricsConflictAfterRemoteStop(t *testing.T) {
	mock := newMock(t)

	end := time.Now()
	mock.ExpectQuery(`SELECT id, courier_id, status`).
		WithArgs("trip-1").
		WillReturnRows(pgxmock.NewRows(tripCols).AddRow(
			"trip-1", "courier-1", "completed", end.Add(-time.Hour), &end,
			6.0, 0.0, 0.0, 30.0, int64(3600), 120, nil, nil, nil, nil,
		))

	app := newTestApp(mock)
	body, _ := json.Marshal(engine.Snapshot{TripID: "trip-1", Status: engine.StatusActive})
	req := httptest.NewRequest(http.MethodPost, "/trips/trip-1/metrics", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("metrics status = %d, want 409", resp.StatusCode)
	}
}

func TestTripHandlersSampleAccepted(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, courier_id, status`).
		WithArgs("trip-1").
		WillReturnRows(activeTripRow("trip-1", "courier-1", 0, nil, nil, nil))
	mock.ExpectExec(`INSERT INTO trip_locations`).
		WithArgs("trip-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE trips`).
		WithArgs("trip-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	app := newTestApp(mock)
	body, _ := json.Marshal(engine.RawSample{Lat: 42.35, Lon: -71.06, AccuracyM: 5, Timestamp: time.Now()})
	req := httptest.NewRequest(http.MethodPost, "/trips/trip-1/samples", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("sample status = %d, err = %v", resp.StatusCode, err)
	}
	var res engine.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected accepted result, got %+v", res)
	}
}

func TestTripHandlersSampleRejectedReason(t *testing.T) {
	mock := newMock(t)

	// 0.1 degrees of latitude in one second is far past the speed gate:
	// the fix is stored but must not accrue, and the response says why.
	lastLat, lastLon := 42.0, -71.0
	lastUpd := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, courier_id, status`).
		WithArgs("trip-1").
		WillReturnRows(activeTripRow("trip-1", "courier-1", 1.5, &lastLat, &lastLon, &lastUpd))
	mock.ExpectExec(`INSERT INTO trip_locations`).
		WithArgs("trip-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	app := newTestApp(mock)
	body, _ := json.Marshal(engine.RawSample{Lat: 42.1, Lon: -71.0, AccuracyM: 5, Timestamp: lastUpd.Add(time.Second)})
	req := httptest.NewRequest(http.MethodPost, "/trips/trip-1/samples", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("sample status = %d, err = %v", resp.StatusCode, err)
	}
	var res engine.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Accepted || res.Reason != engine.ReasonOutlier {
		t.Fatalf("expected outlier reason, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTripHandlersActiveList(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, courier_id, status`).
		WillReturnRows(pgxmock.NewRows(tripCols))

	app := newTestApp(mock)
	req := httptest.NewRequest(http.MethodGet, "/trips/active", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("active status = %d, err = %v", resp.StatusCode, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if string(bytes.TrimSpace(raw)) != "[]" {
		t.Fatalf("expected empty list, got %s", raw)
	}
}

func TestTripHandlersHistoryNotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, courier_id, status`).
		WithArgs("trip-404").
		WillReturnError(pgx.ErrNoRows)

	app := newTestApp(mock)
	req := httptest.NewRequest(http.MethodGet, "/trips/trip-404/history", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("history status = %d, want 404", resp.StatusCode)
	}
}

func TestTripHandlersInactivityAlert(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, courier_id, status`).
		WithArgs("trip-1").
		WillReturnRows(activeTripRow("trip-1", "courier-9", 0, nil, nil, nil))

	app := newTestApp(mock)
	body, _ := json.Marshal(engine.Alert{InactiveMinutes: 6})
	req := httptest.NewRequest(http.MethodPost, "/trips/trip-1/inactivity-alert", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("alert status = %d, err = %v", resp.StatusCode, err)
	}
	var alert engine.Alert
	if err := json.NewDecoder(resp.Body).Decode(&alert); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if alert.Severity != engine.SeverityMedium || alert.CourierID != "courier-9" {
		t.Fatalf("unexpected alert %+v", alert)
	}
}
