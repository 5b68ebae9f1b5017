package schedule

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"timetable/internal/cache"
	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/normalize"
	"timetable/internal/temporal"
	"timetable/internal/timegrid"
)

// Fetcher is the remote side of the service (remote.Client or a test double).
type Fetcher interface {
	Login(ctx context.Context, username, password string) model.Result[*oauth2.Token]
	FetchEvents(ctx context.Context, token *oauth2.Token, program string, semester, week int) model.Result[[]model.RawEvent]
	FetchLecturers(ctx context.Context, token *oauth2.Token) model.Result[[]model.Lecturer]
}

// Cache is the persistent side of the service (cache.Store).
type Cache interface {
	Events(c cache.Coordinate) ([]model.Event, bool)
	PutEvents(c cache.Coordinate, events []model.Event) error
	Lecturers() ([]model.Lecturer, bool)
	PutLecturers(lecturers []model.Lecturer) error
}

// Data is the outcome of one Today call. Either field may carry an error
// marker instead of a value.
type Data struct {
	Context    temporal.Context `json:"-"`
	Coordinate cache.Coordinate `json:"-"`

	Events    model.Result[[]model.Event]    `json:"events"`
	Lecturers model.Result[[]model.Lecturer] `json:"lecturers"`
}

// Service serves today's events through the cache, falling back to the
// remote API for whatever is missing.
type Service struct {
	fetcher Fetcher
	cache   Cache
	grid    *timegrid.Grid
	now     func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGrid replaces the default timeslot grid.
func WithGrid(g *timegrid.Grid) Option {
	return func(s *Service) { s.grid = g }
}

func NewService(f Fetcher, c Cache, opts ...Option) *Service {
	s := &Service{
		fetcher: f,
		cache:   c,
		grid:    timegrid.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Grid() *timegrid.Grid { return s.grid }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// Today returns the events of the current day for program/semester and the
// lecturer directory.
//
// It logs in at most once and fetches each missing resource at most once.
// Anything found in the cache is never fetched again in the same call.
// A failed login fails both fields. A failed lecturer fetch only lets
// events through if they were already cached; events are never normalized
// against a directory that could not be loaded.
func (s *Service) Today(ctx context.Context, program string, semester int, creds model.Credentials) Data {
	tc := temporal.At(s.now())
	coord := cache.Coordinate{Program: program, Semester: semester, Week: tc.Week, Day: tc.Day}
	data := Data{Context: tc, Coordinate: coord}

	events, haveEvents := s.cache.Events(coord)
	lecturers, haveLecturers := s.cache.Lecturers()

	if haveEvents && haveLecturers {
		normalize.Relink(events, lecturers)
		appLog.Debug("schedule served from cache", "file", coord.FileName(), "event_count", len(events))
		data.Events = model.Ok(events)
		data.Lecturers = model.Ok(lecturers)
		return data
	}

	appLog.Info("schedule cache miss",
		"program", program,
		"semester", semester,
		"week", tc.Week,
		"day", tc.Day,
		"have_events", haveEvents,
		"have_lecturers", haveLecturers,
	)

	login := s.fetcher.Login(ctx, creds.Username, creds.Password)
	if !login.OK() {
		data.Events = model.FailWith[[]model.Event](login.Err)
		data.Lecturers = model.FailWith[[]model.Lecturer](login.Err)
		return data
	}
	token := login.Value

	if !haveLecturers {
		res := s.fetcher.FetchLecturers(ctx, token)
		if !res.OK() {
			data.Lecturers = model.FailWith[[]model.Lecturer](res.Err)
			if haveEvents {
				data.Events = model.Ok(events)
			} else {
				data.Events = model.FailWith[[]model.Event](res.Err)
			}
			return data
		}
		lecturers = res.Value
		if err := s.cache.PutLecturers(lecturers); err != nil {
			appLog.Error("lecturer cache write failed", err)
		}
	}
	data.Lecturers = model.Ok(lecturers)

	if haveEvents {
		normalize.Relink(events, lecturers)
		data.Events = model.Ok(events)
		return data
	}

	res := s.fetcher.FetchEvents(ctx, token, program, semester, tc.Week)
	if !res.OK() {
		data.Events = model.FailWith[[]model.Event](res.Err)
		return data
	}

	events = normalize.Normalize(s.grid, res.Value, lecturers, tc.Day)
	if err := s.cache.PutEvents(coord, events); err != nil {
		appLog.Error("event cache write failed", err, "file", coord.FileName())
	}
	data.Events = model.Ok(events)
	return data
}
