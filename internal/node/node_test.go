package node

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/command"
	"github.com/nerrad567/gray-logic-node/internal/hardware"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

var topics = mqtt.Topics{Prefix: "IFCE_Iran"}

// events is a shared, ordered log of calls across fakes.
type events []string

func (e *events) add(s string) { *e = append(*e, s) }

type fakeNetwork struct {
	log *events
	err error
}

func (f *fakeNetwork) Connect(context.Context) error {
	f.log.add("network")
	return f.err
}

func (f *fakeNetwork) IsConnected() bool { return f.err == nil }

type sent struct {
	topic   string
	payload string
	at      time.Time
}

type fakeMessenger struct {
	log        *events
	clock      clock.Clock
	subscribed []string
	inbox      []mqtt.Message
	published  []sent
	publishErr error
}

func (f *fakeMessenger) EnsureConnected(context.Context) error {
	f.log.add("messaging")
	return nil
}

func (f *fakeMessenger) IsConnected() bool { return true }

func (f *fakeMessenger) Subscribe(topic string, _ byte) error {
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeMessenger) Poll(dispatch func(mqtt.Message)) int {
	f.log.add("poll")
	queued := f.inbox
	f.inbox = nil
	for _, m := range queued {
		dispatch(m)
	}
	return len(queued)
}

func (f *fakeMessenger) PublishRetained(topic, payload string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, sent{topic: topic, payload: payload, at: f.clock.Now()})
	return nil
}

func (f *fakeMessenger) Topics() mqtt.Topics { return topics }
func (f *fakeMessenger) ClientID() string    { return "esp32-efbeadde" }

func (f *fakeMessenger) send(topic, payload string) {
	f.inbox = append(f.inbox, mqtt.Message{Topic: topic, Payload: []byte(payload)})
}

func (f *fakeMessenger) on(topic string) []sent {
	var out []sent
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMirror struct {
	points []influxdb.EnvironmentPoint
	err    error
}

func (f *fakeMirror) WriteEnvironment(_ context.Context, p influxdb.EnvironmentPoint) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, p)
	return nil
}

type harness struct {
	node      *Node
	log       *events
	messenger *fakeMessenger
	sim       *hardware.Sim
	clock     *clock.Fake
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	log := &events{}
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	board := hardware.NewSimBoard(config.DisplayConfig{Width: 128, Height: 64})
	msgr := &fakeMessenger{log: log, clock: clk}
	m := metrics.New()

	reader := sensor.NewReader(board.Climate, board.Light, board.Buttons)
	ctrl := actuator.NewController(board.LEDs, board.Tone, board.Display, time.Second, actuator.WithClock(clk))

	opts = append([]Option{
		WithClock(clk),
		WithMetrics(m),
		WithLoopInterval(50 * time.Millisecond),
	}, opts...)
	n := New(&fakeNetwork{log: log}, msgr, reader, ctrl, 10*time.Second, opts...)
	require.NoError(t, n.Start())

	return &harness{node: n, log: log, messenger: msgr, sim: board.Sim, clock: clk, metrics: m}
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	require.NoError(t, h.node.Step(context.Background()))
}

// =============================================================================
// Start and loop ordering
// =============================================================================

func TestStart_SubscribesAndClearsDisplay(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []string{"IFCE_Iran/cmd", "IFCE_Iran/msg"}, h.messenger.subscribed)
	assert.NotNil(t, h.sim.Frame(), "display cleared at start")
	assert.Equal(t, "", h.sim.Text())
}

func TestStep_BeforeStart(t *testing.T) {
	n := New(&fakeNetwork{log: &events{}}, &fakeMessenger{log: &events{}}, nil, nil, time.Second)
	assert.Error(t, n.Step(context.Background()))
}

func TestStep_ConnectsBeforePolling(t *testing.T) {
	h := newHarness(t)
	h.step(t)
	h.step(t)

	assert.Equal(t, events{"network", "messaging", "poll", "network", "messaging", "poll"}, *h.log)
}

func TestStep_NetworkCancelled(t *testing.T) {
	h := newHarness(t)
	h.node.network = &fakeNetwork{log: h.log, err: context.Canceled}

	err := h.node.Step(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, events{"network"}, *h.log, "nothing after a failed network connect")
}

func TestRun_StopsOnCancel(t *testing.T) {
	log := &events{}
	clk := clock.NewFake(time.Unix(0, 0))
	board := hardware.NewSimBoard(config.DisplayConfig{Width: 128, Height: 64})
	ctx, cancel := context.WithCancel(context.Background())

	msgr := &fakeMessenger{log: log, clock: clk}
	n := New(&cancellingNetwork{cancel: cancel, after: 3}, msgr,
		sensor.NewReader(board.Climate, board.Light, board.Buttons),
		actuator.NewController(board.LEDs, board.Tone, board.Display, time.Second, actuator.WithClock(clk)),
		10*time.Second, WithClock(clk))

	assert.NoError(t, n.Run(ctx))
}

// cancellingNetwork cancels the context on its nth Connect.
type cancellingNetwork struct {
	cancel context.CancelFunc
	after  int
	calls  int
}

func (c *cancellingNetwork) Connect(context.Context) error {
	c.calls++
	if c.calls >= c.after {
		c.cancel()
	}
	return nil
}

func (c *cancellingNetwork) IsConnected() bool { return true }

// =============================================================================
// Publish cadence
// =============================================================================

func TestPublish_Cadence(t *testing.T) {
	h := newHarness(t)

	// 25s of loop steps at 50ms each.
	for i := 0; i < 500; i++ {
		h.step(t)
	}

	temps := h.messenger.on(topics.Temperature())
	require.Len(t, temps, 2)
	for i := 1; i < len(temps); i++ {
		assert.GreaterOrEqual(t, temps[i].at.Sub(temps[i-1].at), 10*time.Second)
	}
}

func TestPublish_NoneBeforeFirstInterval(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 10; i++ {
		h.step(t)
	}
	assert.Empty(t, h.messenger.published)
}

func TestPublish_Payloads(t *testing.T) {
	h := newHarness(t)
	h.sim.SetClimate(23.456, 41.2)
	h.sim.SetLight(2048)
	h.sim.Press(1, true)
	h.sim.Press(6, true)
	require.NoError(t, h.sim.Set(actuator.Green, true))

	h.clock.Advance(10 * time.Second)
	h.step(t)

	got := map[string]string{}
	var order []string
	for _, p := range h.messenger.published {
		got[p.topic] = p.payload
		order = append(order, p.topic)
	}

	assert.Equal(t, []string{
		"IFCE_Iran/temperatura",
		"IFCE_Iran/umidade",
		"IFCE_Iran/ldr",
		"IFCE_Iran/botoes",
		"IFCE_Iran/leds",
	}, order)
	assert.Equal(t, "23.46", got[topics.Temperature()])
	assert.Equal(t, "41.20", got[topics.Humidity()])
	assert.Equal(t, "2048", got[topics.Light()])
	assert.Equal(t, "100001", got[topics.Buttons()])
	// The controller's mask only reflects commands it applied itself.
	assert.Equal(t, "000", got[topics.LEDs()])
}

func TestPublish_NaNSkipsCycle(t *testing.T) {
	for _, climate := range [][2]float64{{math.NaN(), 40}, {21, math.NaN()}} {
		h := newHarness(t)
		h.sim.SetClimate(climate[0], climate[1])

		h.clock.Advance(10 * time.Second)
		h.step(t)

		assert.Empty(t, h.messenger.published)
	}
}

// scrape returns the harness metrics in text exposition format.
func (h *harness) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestPublish_FailureIsLoggedOnly(t *testing.T) {
	h := newHarness(t)
	h.messenger.publishErr = errors.New("mqtt: client not connected")

	h.clock.Advance(10 * time.Second)
	assert.NotPanics(t, func() { h.step(t) })

	body := h.scrape(t)
	assert.Contains(t, body, `graylogic_node_publish_cycles_total{result="partial"} 1`)
	assert.NotContains(t, body, `result="ok"`)
	assert.Contains(t, body, "graylogic_node_publishes_failed_total 5")
}

func TestPublish_CycleCountedOK(t *testing.T) {
	h := newHarness(t)

	h.clock.Advance(10 * time.Second)
	h.step(t)

	body := h.scrape(t)
	assert.Contains(t, body, `graylogic_node_publish_cycles_total{result="ok"} 1`)
	assert.NotContains(t, body, `result="partial"`)
}

func TestPublish_Mirror(t *testing.T) {
	mirror := &fakeMirror{}
	h := newHarness(t, WithMirror(mirror))
	h.sim.SetClimate(20, 50)

	h.clock.Advance(10 * time.Second)
	h.step(t)

	require.Len(t, mirror.points, 1)
	p := mirror.points[0]
	assert.Equal(t, "esp32-efbeadde", p.ClientID)
	assert.Equal(t, 20.0, p.Temperature)
	assert.Equal(t, "000000", p.Buttons)
}

func TestPublish_MirrorFailureDoesNotBlockPublish(t *testing.T) {
	h := newHarness(t, WithMirror(&fakeMirror{err: influxdb.ErrBreakerOpen}))

	h.clock.Advance(10 * time.Second)
	h.step(t)

	assert.Len(t, h.messenger.published, 5)
}

// =============================================================================
// Commands
// =============================================================================

func TestCommand_PublishNow(t *testing.T) {
	h := newHarness(t)
	h.messenger.send(topics.Command(), "publish_now")

	h.step(t)

	assert.Len(t, h.messenger.on(topics.Temperature()), 1)

	// The automatic cadence is unaffected: next publish still at start+10s.
	h.clock.Advance(10*time.Second - 50*time.Millisecond)
	h.step(t)
	assert.Len(t, h.messenger.on(topics.Temperature()), 2)
}

func TestCommand_Buzzer(t *testing.T) {
	h := newHarness(t)
	h.messenger.send(topics.Command(), "buzzer250")

	h.step(t)

	freq, started := h.sim.Tone()
	assert.Equal(t, 1, started)
	assert.Zero(t, freq, "tone stopped after the alert")
	assert.False(t, h.sim.LED(actuator.Red), "red released after the alert")
	assert.Contains(t, h.clock.Sleeps(), time.Second)
}

func TestCommand_BuzzerDefaultFrequency(t *testing.T) {
	h := newHarness(t)
	tone := &toneSpy{}
	h.node.actuators = actuator.NewController(h.sim, tone, h.sim, time.Second, actuator.WithClock(h.clock))
	h.messenger.send(topics.Command(), "buzzer")

	h.step(t)

	assert.Equal(t, []int{command.DefaultBuzzerFrequency}, tone.started)
}

func TestCommand_BuzzerConfiguredDefault(t *testing.T) {
	h := newHarness(t, WithAlertFrequency(880))
	tone := &toneSpy{}
	h.node.actuators = actuator.NewController(h.sim, tone, h.sim, time.Second, actuator.WithClock(h.clock))
	h.messenger.send(topics.Command(), "buzzer")

	h.step(t)

	assert.Equal(t, []int{880}, tone.started)
}

type toneSpy struct{ started []int }

func (s *toneSpy) Start(f int) error { s.started = append(s.started, f); return nil }
func (s *toneSpy) Stop() error       { return nil }

func TestCommand_LEDs(t *testing.T) {
	h := newHarness(t)

	h.messenger.send(topics.Command(), "led_verde1")
	h.step(t)
	assert.True(t, h.sim.LED(actuator.Green))
	assert.False(t, h.sim.LED(actuator.Red))
	assert.False(t, h.sim.LED(actuator.Blue))

	h.messenger.send(topics.Command(), "led_azul1")
	h.messenger.send(topics.Command(), "led_verde0")
	h.step(t)
	assert.False(t, h.sim.LED(actuator.Green))
	assert.True(t, h.sim.LED(actuator.Blue))

	h.messenger.send(topics.Command(), "publish_now")
	h.step(t)
	leds := h.messenger.on(topics.LEDs())
	require.Len(t, leds, 1)
	assert.Equal(t, "001", leds[0].payload)
}

func TestCommand_UnknownChangesNothing(t *testing.T) {
	h := newHarness(t)

	for _, c := range []string{"reboot", "led_verde7", "LED_VERDE1", ""} {
		h.messenger.send(topics.Command(), c)
	}
	assert.NotPanics(t, func() { h.step(t) })

	for ch := actuator.Red; ch <= actuator.Blue; ch++ {
		assert.False(t, h.sim.LED(ch))
	}
	_, started := h.sim.Tone()
	assert.Zero(t, started)
	assert.Empty(t, h.messenger.published)
}

func TestMessage_ShownVerbatim(t *testing.T) {
	h := newHarness(t)
	h.messenger.send(topics.Message(), "Hello\nIFCE")

	h.step(t)

	assert.Equal(t, "Hello\nIFCE", h.sim.Text())
}

func TestMessage_OtherTopicsIgnored(t *testing.T) {
	h := newHarness(t)
	h.messenger.send("IFCE_Iran/other", "led_verde1")

	h.step(t)

	assert.False(t, h.sim.LED(actuator.Green))
	assert.Equal(t, "", h.sim.Text())
}
