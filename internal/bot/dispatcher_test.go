package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xaenox/herald-bot/internal/chat"
	"github.com/xaenox/herald-bot/internal/command"
	"github.com/xaenox/herald-bot/internal/directory"
	"github.com/xaenox/herald-bot/internal/models"
	"github.com/xaenox/herald-bot/internal/state"
	"github.com/xaenox/herald-bot/internal/storage"
	"github.com/xaenox/herald-bot/internal/weather"
	"go.uber.org/zap"
)

const adminID int64 = 1000

type fakeChat struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	panics  bool
}

func (f *fakeChat) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fakeWeather struct {
	calls  int
	report *weather.Report
	err    error
}

func (f *fakeWeather) Current(ctx context.Context, location string) (*weather.Report, error) {
	f.calls++
	return f.report, f.err
}

type fakeScheduler struct {
	jobs []models.ScheduledJob
	err  error
}

func (f *fakeScheduler) Schedule(payload string, fireAt time.Time, createdBy int64) (models.ScheduledJob, error) {
	if f.err != nil {
		return models.ScheduledJob{}, f.err
	}
	job := models.ScheduledJob{ID: fmt.Sprintf("job-%d", len(f.jobs)+1), Payload: payload, FireAt: fireAt, CreatedBy: createdBy}
	f.jobs = append(f.jobs, job)
	return job, nil
}

// recordingStore counts directory writes.
type recordingStore struct {
	*storage.MemoryStorage
	saves int
}

func (s *recordingStore) ReplaceAdmins(ctx context.Context, docs []models.AdminDocument) error {
	s.saves++
	return s.MemoryStorage.ReplaceAdmins(ctx, docs)
}

type fixture struct {
	d         *Dispatcher
	state     *state.Store
	store     *recordingStore
	chat      *fakeChat
	weather   *fakeWeather
	scheduler *fakeScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := state.NewStore()
	rs := &recordingStore{MemoryStorage: storage.NewMemoryStorage(
		models.AdminDocument{ID: fmt.Sprint(adminID), Role: models.RoleAdmin},
	)}
	dir := directory.New(rs, st, nil, zap.NewNop())
	dir.Load(context.Background())

	f := &fixture{
		state:     st,
		store:     rs,
		chat:      &fakeChat{reply: "Hello from AI"},
		weather:   &fakeWeather{},
		scheduler: &fakeScheduler{},
	}
	f.d = NewDispatcher(Deps{
		Router:    command.NewRouter("herald_bot"),
		State:     st,
		Directory: dir,
		Weather:   f.weather,
		Chat:      f.chat,
		Scheduler: f.scheduler,
		Location:  time.UTC,
		Logger:    zap.NewNop(),
	})
	return f
}

func event(sender int64, text string) models.InboundEvent {
	return models.InboundEvent{SenderID: sender, ConversationID: sender, Text: text}
}

func TestFallbackAwardsPoints(t *testing.T) {
	tests := []string{
		"hello there",
		"/start",
		"/weatherLondon",
		"/Help",
		"tell me about /leaderboard",
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)

			reply := f.d.Handle(context.Background(), event(7, text))

			if reply.Text != "Hello from AI" || reply.RecipientID != 7 {
				t.Errorf("reply = %+v, want AI reply to 7", reply)
			}
			if got := f.state.Points(7); got != 1 {
				t.Errorf("Points(7) = %d, want 1", got)
			}
			if len(f.chat.prompts) != 1 || f.chat.prompts[0] != text {
				t.Errorf("prompts = %q, want [%q]", f.chat.prompts, text)
			}
		})
	}
}

func TestCommandsDoNotAwardPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"/help", "/leaderboard", "/weather", "/addadmin 5", "/schedule x"} {
		f.d.Handle(ctx, event(7, text))
	}

	if got := f.state.Users(); len(got) != 0 {
		t.Errorf("Users() = %v, want none", got)
	}
	if len(f.chat.prompts) != 0 {
		t.Errorf("chat called %d times, want 0", len(f.chat.prompts))
	}
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErr  error
		wantText string
	}{
		{name: "invalid key", err: fmt.Errorf("%w: nope", chat.ErrInvalidCredentials), wantErr: ErrUpstream, wantText: "Invalid API Key"},
		{name: "rate limited", err: fmt.Errorf("%w: slow down", chat.ErrRateLimited), wantErr: ErrUpstream, wantText: "rate limit exceeded"},
		{name: "service error", err: &chat.ServiceError{Status: 500, Detail: "model overloaded"}, wantErr: ErrUpstream, wantText: "model overloaded"},
		{name: "transport", err: &chat.TransportError{Err: errors.New("dial tcp: refused")}, wantErr: ErrTransport, wantText: "API Connection Error"},
		{name: "unexpected", err: errors.New("weird"), wantErr: ErrUnexpected, wantText: "Unexpected Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.chat.err = tt.err

			ev := event(7, "hi")
			cmd := f.d.router.Classify(ev.Text)
			_, err := f.d.dispatch(context.Background(), ev, cmd)

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("dispatch() err = %v, want %v", err, tt.wantErr)
			}
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("dispatch() err = %v, want *Error", err)
			}
			if !strings.Contains(e.Message, tt.wantText) {
				t.Errorf("message = %q, want it to contain %q", e.Message, tt.wantText)
			}

			reply := f.d.Handle(context.Background(), ev)
			if !strings.Contains(reply.Text, tt.wantText) {
				t.Errorf("reply = %q, want it to contain %q", reply.Text, tt.wantText)
			}
			if got := f.state.Points(7); got != 2 {
				t.Errorf("Points(7) = %d, want 2 even on failures", got)
			}
		})
	}
}

func TestHandleRecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.chat.panics = true

	reply := f.d.Handle(context.Background(), event(7, "hi"))
	if !strings.Contains(reply.Text, "Something went wrong") {
		t.Errorf("reply = %q, want generic failure notice", reply.Text)
	}
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.d.Handle(ctx, event(1, "/leaderboard"))
	if !strings.Contains(reply.Text, "No engagement points") {
		t.Errorf("empty leaderboard reply = %q", reply.Text)
	}

	for user, n := range map[int64]int{11: 3, 22: 7, 33: 1} {
		for i := 0; i < n; i++ {
			f.d.Handle(ctx, event(user, "hi"))
		}
	}

	reply = f.d.Handle(ctx, event(1, "/leaderboard"))
	if reply.Format != models.FormatMarkdown {
		t.Errorf("format = %v, want markdown", reply.Format)
	}

	lines := strings.Split(strings.TrimSpace(reply.Text), "\n")
	want := []string{
		"1. User 22 - 7 points",
		"2. User 11 - 3 points",
		"3. User 33 - 1 points",
	}
	ranked := lines[len(lines)-len(want):]
	for i := range want {
		if ranked[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, ranked[i], want[i])
		}
	}
}

func TestLeaderboardTopFive(t *testing.T) {
	f := newFixture(t)
	for user := int64(1); user <= 8; user++ {
		f.state.AddPoint(user)
	}

	reply := f.d.Handle(context.Background(), event(1, "/leaderboard"))
	if got := strings.Count(reply.Text, " points\n"); got != 5 {
		t.Errorf("leaderboard rows = %d, want 5", got)
	}
}

func TestWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cod":200,"name":"London","sys":{"country":"GB"},"main":{"temp":15.2,"humidity":70},"weather":[{"description":"clear sky"}],"wind":{"speed":3.1}}`))
	}))
	defer srv.Close()

	f := newFixture(t)
	f.d.weather = weather.NewClient("key", srv.URL, time.Second, zap.NewNop())

	reply := f.d.Handle(context.Background(), event(7, "/weather London"))
	for _, want := range []string{"London, GB", "15.2°C", "Clear sky", "70%", "3.1 m/s"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("reply %q does not contain %q", reply.Text, want)
		}
	}
	if reply.Format != models.FormatMarkdown {
		t.Errorf("format = %v, want markdown", reply.Format)
	}
	if f.state.Points(7) != 0 {
		t.Error("weather command awarded a point")
	}
}

func TestFormatWeatherDecimals(t *testing.T) {
	tests := []struct {
		temp, wind float64
		wantTemp   string
		wantWind   string
	}{
		{temp: 15, wind: 3, wantTemp: "15.0°C", wantWind: "3.0 m/s"},
		{temp: 15.2, wind: 3.25, wantTemp: "15.2°C", wantWind: "3.25 m/s"},
		{temp: -2, wind: 0, wantTemp: "-2.0°C", wantWind: "0.0 m/s"},
	}

	for _, tt := range tests {
		got := formatWeather(&weather.Report{Place: "London", Country: "GB", Temperature: tt.temp, WindSpeed: tt.wind, Description: "rain"})
		if !strings.Contains(got, "*Temperature*: "+tt.wantTemp) {
			t.Errorf("formatWeather(temp=%v) = %q, want %q", tt.temp, got, tt.wantTemp)
		}
		if !strings.Contains(got, "*Wind Speed*: "+tt.wantWind) {
			t.Errorf("formatWeather(wind=%v) = %q, want %q", tt.wind, got, tt.wantWind)
		}
	}
}

func TestWeatherErrors(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		err       error
		wantErr   error
		wantText  string
		wantCalls int
	}{
		{name: "missing city", text: "/weather   ", wantErr: ErrValidation, wantText: "Please provide a city name", wantCalls: 0},
		{name: "service error", text: "/weather Atlantis", err: &weather.ServiceError{Code: "404", Message: "city not found"}, wantErr: ErrUpstream, wantText: "⚠ Error: city not found", wantCalls: 1},
		{name: "transport", text: "/weather Paris", err: &weather.TransportError{Err: errors.New("timeout")}, wantErr: ErrTransport, wantText: "currently unavailable", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.weather.err = tt.err

			ev := event(7, tt.text)
			_, err := f.d.dispatch(context.Background(), ev, f.d.router.Classify(ev.Text))

			var e *Error
			if !errors.Is(err, tt.wantErr) || !errors.As(err, &e) {
				t.Fatalf("dispatch() err = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(e.Message, tt.wantText) {
				t.Errorf("message = %q, want %q", e.Message, tt.wantText)
			}
			if f.weather.calls != tt.wantCalls {
				t.Errorf("weather calls = %d, want %d", f.weather.calls, tt.wantCalls)
			}
		})
	}
}

func TestAddRemoveAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.d.Handle(ctx, event(adminID, "/addadmin 42"))
	if !strings.Contains(reply.Text, "Admin 42 added") {
		t.Errorf("add reply = %q", reply.Text)
	}
	if !f.state.IsAdmin(42) || f.store.saves != 1 {
		t.Errorf("after add: IsAdmin(42)=%v saves=%d, want true, 1", f.state.IsAdmin(42), f.store.saves)
	}

	reply = f.d.Handle(ctx, event(adminID, "/addadmin 42"))
	if !strings.Contains(reply.Text, "already an admin") {
		t.Errorf("duplicate add reply = %q", reply.Text)
	}
	if f.store.saves != 1 || len(f.state.Admins()) != 2 {
		t.Errorf("duplicate add changed state: saves=%d admins=%v", f.store.saves, f.state.Admins())
	}

	reply = f.d.Handle(ctx, event(adminID, "/removeadmin 99"))
	if !strings.Contains(reply.Text, "not found") {
		t.Errorf("missing remove reply = %q", reply.Text)
	}
	if f.store.saves != 1 || len(f.state.Admins()) != 2 {
		t.Errorf("missing remove changed state: saves=%d admins=%v", f.store.saves, f.state.Admins())
	}

	reply = f.d.Handle(ctx, event(adminID, "/removeadmin 42"))
	if !strings.Contains(reply.Text, "Admin 42 removed") {
		t.Errorf("remove reply = %q", reply.Text)
	}
	if f.state.IsAdmin(42) || f.store.saves != 2 {
		t.Errorf("after remove: IsAdmin(42)=%v saves=%d, want false, 2", f.state.IsAdmin(42), f.store.saves)
	}

	docs, _ := f.store.ListAdmins(ctx)
	if len(docs) != 1 || docs[0].ID != fmt.Sprint(adminID) {
		t.Errorf("persisted admins = %v, want only %d", docs, adminID)
	}
}

func TestAdminArgumentValidation(t *testing.T) {
	tests := []string{
		"/addadmin",
		"/addadmin 1 2",
		"/addadmin abc",
		"/removeadmin",
		"/removeadmin 12x",
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			ev := event(adminID, text)
			_, err := f.d.dispatch(context.Background(), ev, f.d.router.Classify(text))
			if !errors.Is(err, ErrValidation) {
				t.Errorf("dispatch(%q) err = %v, want validation error", text, err)
			}
			if f.store.saves != 0 {
				t.Errorf("saves = %d, want 0", f.store.saves)
			}
		})
	}
}

func TestNonAdminRejected(t *testing.T) {
	tests := []string{
		"/addadmin 5",
		"/removeadmin 1000",
		"/schedule Hello | 2030-01-01 00:00:00",
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			ev := event(7, text)

			_, err := f.d.dispatch(context.Background(), ev, f.d.router.Classify(text))
			if !errors.Is(err, ErrAuthorization) {
				t.Errorf("dispatch(%q) err = %v, want authorization error", text, err)
			}

			admins := f.state.Admins()
			if len(admins) != 1 || admins[0] != adminID {
				t.Errorf("admins = %v, want [%d]", admins, adminID)
			}
			if f.store.saves != 0 || len(f.scheduler.jobs) != 0 {
				t.Errorf("saves=%d jobs=%d, want no mutation", f.store.saves, len(f.scheduler.jobs))
			}
		})
	}
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantErr  error
		wantJobs int
	}{
		{name: "no separator", args: "Hello World", wantErr: ErrValidation},
		{name: "bad date", args: "Hello | not-a-date", wantErr: ErrValidation},
		{name: "date without seconds", args: "Hello | 2030-01-01 00:00", wantErr: ErrValidation},
		{name: "empty announcement", args: " | 2030-01-01 00:00:00", wantErr: ErrValidation},
		{name: "valid", args: "Hello | 2030-01-01 00:00:00", wantJobs: 1},
		{name: "separator in time part", args: "A | B | 2030-01-01 00:00:00", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			text := "/schedule " + tt.args
			ev := event(adminID, text)

			reply, err := f.d.dispatch(context.Background(), ev, f.d.router.Classify(text))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("err = %v", err)
			}

			if len(f.scheduler.jobs) != tt.wantJobs {
				t.Fatalf("jobs = %d, want %d", len(f.scheduler.jobs), tt.wantJobs)
			}
			if tt.wantJobs == 1 {
				job := f.scheduler.jobs[0]
				want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
				if !job.FireAt.Equal(want) || job.Payload != "Hello" || job.CreatedBy != adminID {
					t.Errorf("job = %+v", job)
				}
				if !strings.Contains(reply.Text, "'Hello' at 2030-01-01 00:00:00") {
					t.Errorf("reply = %q", reply.Text)
				}
			}
		})
	}
}

func TestScheduleFailure(t *testing.T) {
	f := newFixture(t)
	f.scheduler.err = errors.New("scheduler stopped")

	reply := f.d.Handle(context.Background(), event(adminID, "/schedule Hi | 2030-01-01 00:00:00"))
	if !strings.Contains(reply.Text, "could not be scheduled") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestHelp(t *testing.T) {
	f := newFixture(t)
	reply := f.d.Handle(context.Background(), event(7, "/help"))

	if reply.Format != models.FormatMarkdown {
		t.Errorf("format = %v, want markdown", reply.Format)
	}
	for _, name := range command.NewRouter("").Names() {
		if !strings.Contains(reply.Text, "/"+name) {
			t.Errorf("help does not mention /%s", name)
		}
	}
}

func TestConcurrentEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			f.d.Handle(ctx, event(id%4, "hi"))
		}(int64(i))
		go func(id int64) {
			defer wg.Done()
			f.d.Handle(ctx, event(adminID, fmt.Sprintf("/addadmin %d", id)))
			f.d.Handle(ctx, event(adminID, fmt.Sprintf("/removeadmin %d", id)))
		}(int64(i + 1))
	}
	wg.Wait()

	total := 0
	for _, id := range f.state.Users() {
		total += f.state.Points(id)
	}
	if total != 40 {
		t.Errorf("total points = %d, want 40", total)
	}
	if admins := f.state.Admins(); len(admins) != 1 {
		t.Errorf("admins = %v, want only the seed admin", admins)
	}
}
