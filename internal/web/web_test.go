package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable/internal/config"
	"timetable/internal/model"
	"timetable/internal/schedule"
	"timetable/internal/temporal"
	"timetable/internal/timegrid"
)

type fakeSchedule struct {
	now   time.Time
	data  schedule.Data
	calls int

	lastProgram  string
	lastSemester int
	lastCreds    model.Credentials
}

func (f *fakeSchedule) Today(ctx context.Context, program string, semester int, creds model.Credentials) schedule.Data {
	f.calls++
	f.lastProgram = program
	f.lastSemester = semester
	f.lastCreds = creds
	d := f.data
	d.Context = temporal.At(f.now)
	return d
}

func (f *fakeSchedule) Grid() *timegrid.Grid { return timegrid.Default() }
func (f *fakeSchedule) Now() time.Time       { return f.now }

type fakeLinks struct{}

func (fakeLinks) WebLink(program string, semester, week int) string {
	return fmt.Sprintf("https://web.test/%s%d/kw%d", program, semester, week)
}

func (fakeLinks) EventLink(program string, semester, week int, id model.ID) string {
	return fmt.Sprintf("https://web.test/%s%d/kw%d/%s", program, semester, week, id)
}

func okData() schedule.Data {
	prof := model.Lecturer{ID: "l1", Name: "Prof. L"}
	return schedule.Data{
		Events: model.Ok([]model.Event{
			{ID: "e1", Name: "Early", DayOfWeek: 3, StartOffset: 29700000, EndOffset: 35100000, Lecturers: []*model.Lecturer{&prof}},
			{ID: "e2", Name: "Late", DayOfWeek: 3, StartOffset: 36000000, EndOffset: 41400000},
		}),
		Lecturers: model.Ok([]model.Lecturer{prof}),
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Credentials = model.Credentials{Username: "alice", Password: "pw"}
	return cfg
}

// Thursday 2026-10-15, inside the first slot.
var testNow = time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

func TestHealthBypassesBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	s := NewServer(cfg, &fakeSchedule{now: testNow, data: okData()}, fakeLinks{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/today", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/today", nil)
	req.SetBasicAuth("u", "p")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToday(t *testing.T) {
	f := &fakeSchedule{now: testNow, data: okData()}
	s := NewServer(testConfig(), f, fakeLinks{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/today?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Program     string            `json:"program"`
		Semester    int               `json:"semester"`
		Week        int               `json:"week"`
		Events      []json.RawMessage `json:"events"`
		View        struct {
			Status  string `json:"status"`
			Hidden  int    `json:"hidden"`
			Visible []struct {
				InProgress bool `json:"in_progress"`
			} `json:"visible"`
		} `json:"view"`
		NextRefresh time.Time `json:"next_refresh"`
		WebLink     string    `json:"web_link"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "bmm", body.Program)
	assert.Equal(t, 4, body.Semester)
	assert.Equal(t, 42, body.Week)
	assert.Len(t, body.Events, 2)
	assert.Equal(t, "upcoming", body.View.Status)
	assert.Equal(t, 1, body.View.Hidden)
	require.Len(t, body.View.Visible, 1)
	assert.True(t, body.View.Visible[0].InProgress)
	assert.True(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC).Equal(body.NextRefresh))
	assert.Equal(t, "https://web.test/bmm4/kw42", body.WebLink)

	assert.Equal(t, "alice", f.lastCreds.Username)
}

func TestTodayQueryOverridesCoordinate(t *testing.T) {
	f := &fakeSchedule{now: testNow, data: okData()}
	s := NewServer(testConfig(), f, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/today?program=bin&semester=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bin", f.lastProgram)
	assert.Equal(t, 2, f.lastSemester)
	assert.NotContains(t, rec.Body.String(), "web_link")
}

func TestTodayErrorMarkers(t *testing.T) {
	f := &fakeSchedule{now: testNow, data: schedule.Data{
		Events:    model.Fail[[]model.Event](model.KindAuthentication, model.MsgInvalidCredentials),
		Lecturers: model.Fail[[]model.Lecturer](model.KindAuthentication, model.MsgInvalidCredentials),
	}}
	s := NewServer(testConfig(), f, fakeLinks{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/today", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, `{"error":"invalid credentials"}`, string(body["events"]))
	assert.JSONEq(t, `{"error":"invalid credentials"}`, string(body["lecturers"]))
	_, hasView := body["view"]
	assert.False(t, hasView)

	// Failures are never reused.
	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/today", nil))
	assert.Equal(t, 2, f.calls)
}

func TestTodayReusesSnapshotUntilRefresh(t *testing.T) {
	f := &fakeSchedule{now: testNow, data: okData()}
	s := NewServer(testConfig(), f, nil)

	s.Today(context.Background(), "bmm", 4)
	s.Today(context.Background(), "bmm", 4)
	assert.Equal(t, 1, f.calls)

	s.Today(context.Background(), "bin", 4)
	assert.Equal(t, 2, f.calls, "another coordinate is not served from the snapshot")

	f.now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	s.Today(context.Background(), "bin", 4)
	assert.Equal(t, 3, f.calls, "snapshot expires at the refresh hint")
}

func TestTodayICS(t *testing.T) {
	s := NewServer(testConfig(), &fakeSchedule{now: testNow, data: okData()}, fakeLinks{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/today.ics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	assert.Contains(t, rec.Body.String(), "SUMMARY:Early")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Late")
}

func TestTodayICSFailure(t *testing.T) {
	f := &fakeSchedule{now: testNow, data: schedule.Data{
		Events:    model.Fail[[]model.Event](model.KindFetch, model.MsgNotAuthenticated),
		Lecturers: model.Ok([]model.Lecturer{}),
	}}
	s := NewServer(testConfig(), f, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/today.ics", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), model.MsgNotAuthenticated)
}
