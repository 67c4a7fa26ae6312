package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

func sampleFrame(tick int, phase string) Frame {
	state := world.NewWorldState()
	state.Tick = tick
	state.Phase = phase
	state.Objects["cup_1"] = world.DetectedObject{ID: "cup_1", Class: world.ClassCup, Confidence: 0.81234, Visible: true}
	state.Objects["bin_1"] = world.DetectedObject{ID: "bin_1", Class: world.ClassBin, Confidence: 0.97, Visible: true}
	return Frame{
		TsMs:          1700000000000 + int64(tick),
		Phase:         phase,
		Plan:          []string{"NAVIGATE(cup_1)", "GRASP(cup_1)"},
		CurrentAction: "NAVIGATE(cup_1)",
		Retries:       1,
		Replans:       2,
		World:         NewWorldSnapshot(state),
		Metrics:       NewMetricsSnapshot(world.EpisodeMetrics{Retries: 1, Replans: 2, StepsExecuted: 3}, 1500*time.Millisecond, nil),
	}
}

// #region frame

func TestFrame_RoundTripKeepsCounters(t *testing.T) {
	in := sampleFrame(4, "EXECUTE_NAVIGATE")
	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Phase != in.Phase || out.Retries != 1 || out.Replans != 2 || out.World.Tick != 4 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.Metrics.StepsExecuted != 3 || out.Metrics.DurationS != 1.5 {
		t.Fatalf("metrics mismatch: %+v", out.Metrics)
	}
}

func TestFrame_UnsetFieldsAreNull(t *testing.T) {
	data, err := Encode(sampleFrame(0, "IDLE"))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw["last_error"]; !ok || v != nil {
		t.Fatalf("last_error should be null, got %v (present=%v)", v, ok)
	}
	w := raw["world"].(map[string]any)
	if v, ok := w["held_object_id"]; !ok || v != nil {
		t.Fatalf("held_object_id should be null, got %v", v)
	}
	m := raw["metrics"].(map[string]any)
	if v, ok := m["success_rate_last10"]; !ok || v != nil {
		t.Fatalf("success_rate_last10 should be null, got %v", v)
	}
	if _, ok := raw["episode_id"]; ok {
		t.Fatal("empty episode_id should be omitted")
	}
}

func TestWorldSnapshot_SortedAndRounded(t *testing.T) {
	snap := sampleFrame(1, "IDLE").World
	if len(snap.Objects) != 2 || snap.Objects[0].ID != "bin_1" || snap.Objects[1].ID != "cup_1" {
		t.Fatalf("objects not sorted: %+v", snap.Objects)
	}
	if snap.Objects[1].Confidence != 0.812 {
		t.Fatalf("confidence not rounded: %v", snap.Objects[1].Confidence)
	}
	if len(snap.RobotState.JointPositions) != world.JointCount {
		t.Fatalf("joint positions = %d", len(snap.RobotState.JointPositions))
	}
}

// #endregion frame

// #region sinks

func TestMultiSink_OrderAndClose(t *testing.T) {
	var order []string
	a := SinkFunc(func(Frame) { order = append(order, "a") })
	b := NewMemorySink()
	m := NewMultiSink(a, b)
	m.Add(SinkFunc(func(Frame) { order = append(order, "c") }))
	m.Emit(sampleFrame(0, "IDLE"))
	if strings.Join(order, ",") != "a,c" || len(b.Frames()) != 1 {
		t.Fatalf("order=%v memory=%d", order, len(b.Frames()))
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestJSONLSink_OneLinePerFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "telemetry.jsonl")
	s, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		s.Emit(sampleFrame(i, "IDLE"))
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		fr, err := Decode(sc.Bytes())
		if err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		if fr.World.Tick != n {
			t.Fatalf("line %d has tick %d", n, fr.World.Tick)
		}
		n++
	}
	if n != 3 {
		t.Fatalf("lines = %d", n)
	}
}

func TestStdoutSink_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)
	s.Emit(sampleFrame(2, "EXECUTE_GRASP"))
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if line["phase"] != "EXECUTE_GRASP" || line["action"] != "NAVIGATE(cup_1)" {
		t.Fatalf("unexpected line %v", line)
	}
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Frame
}

func (b *blockingSink) Emit(f Frame) {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, f)
	b.mu.Unlock()
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	inner := &blockingSink{release: make(chan struct{})}
	a := NewAsyncSink(inner, 1)
	for i := range 10 {
		a.Emit(sampleFrame(i, "IDLE"))
	}
	if a.Dropped() == 0 {
		t.Fatal("expected drops with a blocked consumer")
	}
	close(inner.release)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	delivered := uint64(len(inner.got))
	if delivered+a.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", delivered, a.Dropped())
	}
	a.Emit(sampleFrame(11, "IDLE"))
	if delivered+a.Dropped() != 11 {
		t.Fatal("emit after close should count as a drop")
	}
}

func TestAsyncSink_DrainsOnClose(t *testing.T) {
	mem := NewMemorySink()
	a := NewAsyncSink(mem, 64)
	for i := range 20 {
		a.Emit(sampleFrame(i, "IDLE"))
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if len(mem.Frames()) != 20 || a.Dropped() != 0 {
		t.Fatalf("frames=%d dropped=%d", len(mem.Frames()), a.Dropped())
	}
}

// #endregion sinks

// #region feed

func TestFeed_HistoryBounded(t *testing.T) {
	f := NewFeed(5)
	for i := range 8 {
		f.Emit(sampleFrame(i, "IDLE"))
	}
	h := f.History(100)
	if len(h) != 5 || h[0].World.Tick != 3 || h[4].World.Tick != 7 {
		t.Fatalf("history = %d frames starting at %d", len(h), h[0].World.Tick)
	}
}

func TestFeed_Routes(t *testing.T) {
	f := NewFeed(DefaultHistoryLimit)
	srv := httptest.NewServer(f.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/latest")
	if err != nil {
		t.Fatal(err)
	}
	var empty map[string]any
	json.NewDecoder(resp.Body).Decode(&empty)
	resp.Body.Close()
	if len(empty) != 0 {
		t.Fatalf("latest before any frame = %v", empty)
	}

	for i := range 3 {
		f.Emit(sampleFrame(i, "IDLE"))
	}

	resp, err = http.Get(srv.URL + "/history?limit=0")
	if err != nil {
		t.Fatal(err)
	}
	var hist []Frame
	json.NewDecoder(resp.Body).Decode(&hist)
	resp.Body.Close()
	if len(hist) != 1 || hist[0].World.Tick != 2 {
		t.Fatalf("limit=0 should clamp to 1, got %d", len(hist))
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/latest", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status %d", resp.StatusCode)
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int{"": DefaultHistoryQuery, "abc": DefaultHistoryQuery, "-4": 1, "10": 10, "99999": 5000}
	for in, want := range cases {
		if got := parseLimit(in); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", in, got, want)
		}
	}
}

// #endregion feed

func TestPhaseTone(t *testing.T) {
	errText := "grasp_failed:cup_1"
	cases := []struct {
		phase   string
		lastErr *string
		want    string
	}{
		{world.PhaseDoneSuccess, nil, toneOK},
		{world.PhaseGoalReached, nil, toneOK},
		{world.PhaseDoneFailure, &errText, toneBad},
		{world.PhaseReplanEmptyPlan, nil, toneWarn},
		{world.PhaseReplanAfterFailure, &errText, toneWarn},
		{world.ExecutePhase(world.ActionGrasp), &errText, toneWarn},
		{world.ExecutePhase(world.ActionNavigate), nil, toneRun},
		{"REPLAN", nil, toneRun},
	}
	for _, tc := range cases {
		if got := phaseTone(Frame{Phase: tc.phase, LastError: tc.lastErr}); got != tc.want {
			t.Errorf("%s (err=%v): tone %q, want %q", tc.phase, tc.lastErr != nil, got, tc.want)
		}
	}
}
