package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/tunnelwatch/internal/tunnel"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type controllerFixture struct {
	reg       *Registry
	store     *StatusStore
	prober    *fakeProber
	connector *tunnel.MockConnector
	ctrl      *Controller

	mu       sync.Mutex
	sessions []Session
}

func newControllerFixture(t *testing.T, noticeTTL time.Duration) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		reg:       testRegistry(t),
		prober:    newFakeProber(),
		connector: tunnel.NewMockConnector(gomock.NewController(t)),
	}
	f.store = NewStatusStore(f.reg)
	f.ctrl = NewController(f.reg, f.store, f.prober, f.connector, ControllerOptions{
		NoticeTTL:       noticeTTL,
		RefreshInterval: 10 * time.Second,
		Logger:          zap.NewNop(),
		OnSession: func(s Session) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.sessions = append(f.sessions, s)
		},
	})
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *controllerFixture) notices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sessions {
		out = append(out, s.Notice)
	}
	return out
}

func assertDefaults(t *testing.T, s *StatusStore) {
	t.Helper()
	for id, rec := range s.Snapshot() {
		if rec.Connected || rec.Payload != nil || rec.Error != "" || rec.Checking || rec.LastCheckedAt != nil || rec.LatencyMs != nil {
			t.Errorf("record %s is not at defaults: %+v", id, rec)
		}
	}
}

func TestController_ScenarioA_AllConnected(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	f.connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{}, nil)
	f.prober.set("sec", okResult(`{"projects":3}`, 80))
	f.prober.set("open", okResult(`{"users":2}`, 120))

	if !f.ctrl.Start(context.Background()) {
		t.Fatal("Start() = false from idle")
	}
	f.ctrl.Wait()

	if got := f.ctrl.State(); got != StateProbing {
		t.Errorf("State() = %s, want probing", got)
	}
	stats := f.ctrl.Stats()
	if stats.SecuredConnected != 1 || stats.SecuredTotal != 1 || stats.UnsecuredConnected != 1 || stats.UnsecuredTotal != 1 {
		t.Errorf("Stats() = %+v", stats)
	}

	recs := f.ctrl.Records()
	if recs[0].Display != DisplaySecured || recs[1].Display != DisplayUnsecured {
		t.Errorf("displays = %s, %s", recs[0].Display, recs[1].Display)
	}
	if s := f.ctrl.Status(); !s.Active || s.Notice != NoticeConnected {
		t.Errorf("Status() = %+v", s)
	}

	notices := f.notices()
	if len(notices) < 2 || notices[0] != NoticeConnecting || notices[1] != NoticeConnected {
		t.Errorf("notice sequence = %q", notices)
	}
}

func TestController_ScenarioB_ConnectFails(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	f.connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{},
		&tunnel.Error{Action: tunnel.ActionConnect, Err: tunnel.ErrCommandFailed, Detail: "auth rejected"})

	if !f.ctrl.Start(context.Background()) {
		t.Fatal("Start() = false from idle")
	}
	f.ctrl.Wait()

	s := f.ctrl.Status()
	if s.State != StateIdle || s.Active {
		t.Errorf("state after failed connect = %s, want idle", s.State)
	}
	if s.Notice != "Connection failed: auth rejected" || s.LastError != "auth rejected" {
		t.Errorf("notice = %q, last_error = %q", s.Notice, s.LastError)
	}
	if n := f.prober.totalCalls(); n != 0 {
		t.Errorf("prober called %d times after failed connect", n)
	}
	assertDefaults(t, f.store)
}

func TestController_ScenarioC_PartialFailure(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	f.connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{}, nil)
	f.prober.set("sec", failResult("request timed out"))
	f.prober.set("open", okResult(`{"status":"healthy"}`, 20))

	f.ctrl.Start(context.Background())
	f.ctrl.Wait()

	sec, _ := f.store.Get("sec")
	if sec.Connected || sec.Error != "request timed out" || sec.Checking || sec.LastCheckedAt == nil {
		t.Errorf("failed endpoint = %+v", sec)
	}
	open, _ := f.store.Get("open")
	if !open.Connected || string(open.Payload) != `{"status":"healthy"}` {
		t.Errorf("sibling endpoint = %+v", open)
	}
	if f.ctrl.State() != StateProbing {
		t.Errorf("one failed probe must not end the session, state = %s", f.ctrl.State())
	}
}

func TestController_ScenarioD_StopDiscardsLateResult(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	f.connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{}, nil)
	f.connector.EXPECT().Disconnect(gomock.Any()).Return(tunnel.Outcome{}, nil)
	gate := f.prober.gate("sec")

	f.ctrl.Start(context.Background())
	waitFor(t, "sec probe in flight", func() bool { return f.prober.callCount("sec") == 1 })

	if !f.ctrl.Stop(context.Background()) {
		t.Fatal("Stop() = false while probing")
	}
	close(gate)
	f.ctrl.Wait()

	if f.ctrl.State() != StateIdle {
		t.Errorf("State() = %s, want idle", f.ctrl.State())
	}
	assertDefaults(t, f.store)
}

func TestController_StartIdempotentWhileConnecting(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	release := make(chan struct{})
	f.connector.EXPECT().Connect(gomock.Any()).DoAndReturn(func(context.Context) (tunnel.Outcome, error) {
		<-release
		return tunnel.Outcome{}, nil
	}).Times(1)

	if !f.ctrl.StartAsync(context.Background()) {
		t.Fatal("StartAsync() = false from idle")
	}
	if f.ctrl.State() != StateConnecting {
		t.Fatalf("State() = %s, want connecting", f.ctrl.State())
	}
	if f.ctrl.Start(context.Background()) {
		t.Error("second Start() while connecting made an attempt")
	}

	close(release)
	f.ctrl.Wait()
	if f.ctrl.State() != StateProbing {
		t.Errorf("State() = %s, want probing", f.ctrl.State())
	}
	if f.ctrl.Start(context.Background()) {
		t.Error("Start() while probing made an attempt")
	}
}

func TestController_StopWhileConnectingIgnoresResult(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	entered := make(chan struct{})
	f.connector.EXPECT().Connect(gomock.Any()).DoAndReturn(func(ctx context.Context) (tunnel.Outcome, error) {
		close(entered)
		<-ctx.Done()
		return tunnel.Outcome{}, nil // report success even though we were cancelled
	})
	f.connector.EXPECT().Disconnect(gomock.Any()).Return(tunnel.Outcome{}, nil)

	f.ctrl.StartAsync(context.Background())
	<-entered
	f.ctrl.Stop(context.Background())
	f.ctrl.Wait()

	if f.ctrl.State() != StateIdle {
		t.Errorf("State() = %s, want idle", f.ctrl.State())
	}
	if n := f.prober.totalCalls(); n != 0 {
		t.Errorf("probes dispatched for a stopped session: %d", n)
	}
}

func TestController_DisconnectFailureStillResets(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	f.connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{}, nil)
	f.connector.EXPECT().Disconnect(gomock.Any()).Return(tunnel.Outcome{}, errors.New("mpp: not running"))

	f.ctrl.Start(context.Background())
	f.ctrl.Wait()
	f.ctrl.Stop(context.Background())

	s := f.ctrl.Status()
	if s.State != StateIdle || s.LastError != "mpp: not running" {
		t.Errorf("Status() = %+v", s)
	}
	assertDefaults(t, f.store)
}

func TestController_StopWhenIdle(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	if f.ctrl.Stop(context.Background()) {
		t.Error("Stop() while idle reported work")
	}
}

func TestController_NoticeClearsAfterTTL(t *testing.T) {
	f := newControllerFixture(t, 20*time.Millisecond)
	f.connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{}, nil)

	f.ctrl.Start(context.Background())
	waitFor(t, "notice to clear", func() bool { return f.ctrl.Status().Notice == "" })
	if f.ctrl.State() != StateProbing {
		t.Errorf("clearing the notice changed the state to %s", f.ctrl.State())
	}
}

func TestController_RefreshAllWithoutConnector(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	// No connector expectations: RefreshAll must not touch it.
	f.ctrl.RefreshAll(context.Background())
	f.ctrl.Wait()

	if f.prober.callCount("sec") != 1 || f.prober.callCount("open") != 1 {
		t.Errorf("calls = %d/%d, want 1/1", f.prober.callCount("sec"), f.prober.callCount("open"))
	}
	if f.ctrl.State() != StateIdle {
		t.Errorf("RefreshAll changed state to %s", f.ctrl.State())
	}
	if rec, _ := f.store.Get("sec"); !rec.Connected {
		t.Error("refresh result not merged")
	}
}

func TestController_OverlappingRefreshKeepsChecking(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	gate := f.prober.gate("sec")

	f.ctrl.RefreshAll(context.Background())
	waitFor(t, "first probe", func() bool { return f.prober.callCount("sec") == 1 })

	f.prober.mu.Lock()
	delete(f.prober.gates, "sec")
	f.prober.mu.Unlock()
	f.ctrl.RefreshAll(context.Background())
	waitFor(t, "second probe", func() bool { return f.prober.callCount("sec") == 2 })
	waitFor(t, "second result", func() bool {
		rec, _ := f.store.Get("sec")
		return rec.Connected
	})

	if rec, _ := f.store.Get("sec"); !rec.Checking {
		t.Error("checking cleared while the first probe is still in flight")
	}
	close(gate)
	f.ctrl.Wait()
	if rec, _ := f.store.Get("sec"); rec.Checking {
		t.Error("checking still set after both probes settled")
	}
}

func TestController_ToggleAndExpand(t *testing.T) {
	f := newControllerFixture(t, time.Hour)
	f.connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{}, nil)
	f.connector.EXPECT().Disconnect(gomock.Any()).Return(tunnel.Outcome{}, nil)

	f.ctrl.Toggle(context.Background())
	f.ctrl.Wait()
	if f.ctrl.State() != StateProbing {
		t.Fatalf("State() after toggle on = %s", f.ctrl.State())
	}

	got, err := f.ctrl.ToggleExpanded("open")
	if err != nil || !got.Status.Expanded {
		t.Fatalf("ToggleExpanded() = %+v, %v", got, err)
	}
	got, _ = f.ctrl.ToggleExpanded("open")
	if got.Status.Expanded {
		t.Error("second ToggleExpanded() did not collapse")
	}
	if _, err := f.ctrl.ToggleExpanded("missing"); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("ToggleExpanded(missing) error = %v", err)
	}

	got, err = f.ctrl.ToggleRawData("sec")
	if err != nil || !got.Status.ShowRawData {
		t.Fatalf("ToggleRawData(sec) = %+v, %v", got, err)
	}
	if _, err := f.ctrl.ToggleRawData("open"); !errors.Is(err, ErrNotSecured) {
		t.Errorf("ToggleRawData(open) error = %v, want ErrNotSecured", err)
	}
	if _, err := f.ctrl.ToggleRawData("missing"); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("ToggleRawData(missing) error = %v", err)
	}

	if st := f.ctrl.Toggle(context.Background()); st != StateIdle {
		t.Errorf("Toggle() off = %s, want idle", st)
	}
}

func TestController_StartDuringFailedConnectResetIsRejected(t *testing.T) {
	reg := testRegistry(t)
	store := NewStatusStore(reg)
	prober := newFakeProber()
	prober.set("sec", okResult(`{"projects":3}`, 80))
	prober.set("open", okResult(`{"users":2}`, 120))
	connector := tunnel.NewMockConnector(gomock.NewController(t))
	gomock.InOrder(
		connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{},
			&tunnel.Error{Action: tunnel.ActionConnect, Err: tunnel.ErrCommandFailed, Detail: "auth rejected"}),
		connector.EXPECT().Connect(gomock.Any()).Return(tunnel.Outcome{}, nil),
	)

	var ctrl *Controller
	var retried, retryStarted bool
	core, _ := observer.New(zap.InfoLevel)
	logger := zap.New(core, zap.Hooks(func(e zapcore.Entry) error {
		if e.Message == "tunnel connect failed" && !retried {
			retried = true
			retryStarted = ctrl.Start(context.Background())
		}
		return nil
	}))
	ctrl = NewController(reg, store, prober, connector, ControllerOptions{Logger: logger})
	t.Cleanup(ctrl.Close)

	ctrl.Start(context.Background())
	ctrl.Wait()

	if !retried || retryStarted {
		t.Fatalf("Start while the failed session was resetting: ran=%v started=%v, want rejected", retried, retryStarted)
	}
	if s := ctrl.Status(); s.State != StateIdle || s.LastError != "auth rejected" {
		t.Fatalf("Status() = %+v, want idle with the connect error", s)
	}
	assertDefaults(t, store)

	if !ctrl.Start(context.Background()) {
		t.Fatal("Start() after the failure settled = false")
	}
	ctrl.Wait()
	for _, id := range []string{"sec", "open"} {
		rec, _ := store.Get(id)
		if !rec.Connected || rec.LastCheckedAt == nil {
			t.Errorf("%s after reconnect = %+v, want a merged probe result", id, rec)
		}
	}
}
