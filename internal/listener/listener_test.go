package listener_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/oculus/internal/listener"
	"github.com/MrWong99/oculus/internal/resilience"
	"github.com/MrWong99/oculus/pkg/audio"
	audiomock "github.com/MrWong99/oculus/pkg/audio/mock"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	sttmock "github.com/MrWong99/oculus/pkg/provider/stt/mock"
	"github.com/MrWong99/oculus/pkg/provider/vad"
	"github.com/MrWong99/oculus/pkg/provider/vad/energy"
	vadmock "github.com/MrWong99/oculus/pkg/provider/vad/mock"
)

const rate = 16000

var micFormat = audio.Format{SampleRate: rate, Channels: 1}

// tone returns n 100ms frames of a square wave with the given amplitude.
func tone(n int, amp int16) [][]byte {
	samples := make([]int16, rate/10)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	pcm := audio.Int16ToBytes(samples)
	out := make([][]byte, n)
	for i := range out {
		out[i] = pcm
	}
	return out
}

func silence(n int) [][]byte { return tone(n, 0) }

// phrase is half a second of speech followed by enough silence to end it.
func phrase() [][]byte {
	return append(tone(5, 3000), silence(9)...)
}

func newListener(t *testing.T, in *audiomock.Input, p stt.Provider, opts ...listener.Option) *listener.Listener {
	t.Helper()
	opts = append([]listener.Option{
		listener.WithFormat(rate, rate/10),
		listener.WithVAD(vad.Config{EnergyThreshold: 300, PauseThreshold: 800 * time.Millisecond}),
	}, opts...)
	l := listener.New(&audiomock.Device{In: in}, energy.New(), p, opts...)
	t.Cleanup(func() { l.Stop(true) })
	return l
}

func collect() (listener.Callback, <-chan string) {
	ch := make(chan string, 16)
	return func(_ context.Context, text string) { ch <- text }, ch
}

func expectText(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Errorf("callback text: got %q, want %q", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no callback for %q", want)
	}
}

func TestListener_TranscribesPhrase(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(silence(3)...)
	in.PushPCM(phrase()...)
	p := &sttmock.Provider{Results: []sttmock.Result{{Text: "what color is the sky?"}}}
	l := newListener(t, in, p)

	cb, ch := collect()
	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectText(t, ch, "what color is the sky?")

	l.Stop(true)
	u := p.Utterances[0]
	if u.SampleRate != rate {
		t.Errorf("utterance rate: got %d", u.SampleRate)
	}
	// 500ms of speech plus pre-roll and the 800ms closing pause.
	if u.Duration < time.Second {
		t.Errorf("utterance duration: got %v, want at least 1s", u.Duration)
	}
}

func TestListener_UnrecognizedIsDropped(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(phrase()...)
	in.PushPCM(phrase()...)
	p := &sttmock.Provider{Results: []sttmock.Result{
		{Err: stt.ErrUnrecognized},
		{Text: "hello"},
	}}
	l := newListener(t, in, p, listener.WithRetry(resilience.Policy{MaxAttempts: 3}))

	cb, ch := collect()
	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectText(t, ch, "hello")
	if got := p.CallCount(); got != 2 {
		t.Errorf("transcribe calls: got %d, want 2 (unrecognised audio is not retried)", got)
	}
}

func TestListener_RetriesTranscription(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(phrase()...)
	p := &sttmock.Provider{Results: []sttmock.Result{
		{Err: errors.New("503")},
		{Text: "again"},
	}}
	l := newListener(t, in, p, listener.WithRetry(resilience.Policy{MaxAttempts: 2}))

	cb, ch := collect()
	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectText(t, ch, "again")
}

func TestListener_FailedAndEmptyAreDropped(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(phrase()...)
	in.PushPCM(phrase()...)
	in.PushPCM(phrase()...)
	p := &sttmock.Provider{Results: []sttmock.Result{
		{Err: errors.New("boom")},
		{Text: "   "},
		{Text: "third time"},
	}}
	l := newListener(t, in, p)

	cb, ch := collect()
	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectText(t, ch, "third time")
}

func TestListener_ShortNoiseIgnored(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(tone(1, 3000)...)
	in.PushPCM(silence(9)...)
	in.PushPCM(phrase()...)
	p := &sttmock.Provider{Fallback: sttmock.Result{Text: "real question"}}
	l := newListener(t, in, p)

	cb, ch := collect()
	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectText(t, ch, "real question")
	if got := p.CallCount(); got != 1 {
		t.Errorf("transcribe calls: got %d, want 1", got)
	}
}

func TestListener_StopWaitsForCallback(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(phrase()...)
	entered := make(chan struct{})
	release := make(chan struct{})
	p := &sttmock.Provider{Fallback: sttmock.Result{Text: "hi"}}
	l := newListener(t, in, p)

	cb := func(context.Context, string) {
		close(entered)
		<-release
	}
	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("callback never ran")
	}

	stopped := make(chan struct{})
	go func() {
		l.Stop(true)
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop(true) returned while a callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop(true) did not return")
	}
	if !in.Closed() {
		t.Error("microphone not released")
	}
}

func TestListener_StopWithoutWait(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(phrase()...)
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	p := &sttmock.Provider{Fallback: sttmock.Result{Text: "hi"}}
	l := newListener(t, in, p)

	cb := func(context.Context, string) {
		close(entered)
		<-release
	}
	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered

	done := make(chan struct{})
	go func() {
		l.Stop(false)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop(false) blocked on the callback")
	}
}

func TestListener_Lifecycle(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	l := newListener(t, in, &sttmock.Provider{})
	cb, _ := collect()

	if err := l.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(context.Background(), cb); !errors.Is(err, listener.ErrStarted) {
		t.Errorf("second Start: got %v, want ErrStarted", err)
	}
	if err := l.Calibrate(context.Background(), time.Second); !errors.Is(err, listener.ErrStarted) {
		t.Errorf("Calibrate after Start: got %v, want ErrStarted", err)
	}
	l.Stop(true)
	l.Stop(true)

	l2 := newListener(t, audiomock.NewInput(micFormat), &sttmock.Provider{})
	l2.Stop(true)
	if err := l2.Start(context.Background(), cb); !errors.Is(err, listener.ErrStopped) {
		t.Errorf("Start after Stop: got %v, want ErrStopped", err)
	}
}

func TestListener_OpenError(t *testing.T) {
	t.Parallel()
	boom := errors.New("no microphone")
	l := listener.New(&audiomock.Device{OpenInputErr: boom}, energy.New(), &sttmock.Provider{})
	cb, _ := collect()
	if err := l.Start(context.Background(), cb); !errors.Is(err, boom) {
		t.Errorf("Start: got %v, want %v", err, boom)
	}
}

func TestListener_CalibrateLowersThresholdInQuietRoom(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(silence(10)...)
	l := newListener(t, in, &sttmock.Provider{})

	if err := l.Calibrate(context.Background(), 500*time.Millisecond); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if got := l.Threshold(); got >= 300 {
		t.Errorf("threshold after calibration: got %v, want below 300", got)
	}
	if got := in.Pending(); got != 5 {
		t.Errorf("frames left after 500ms calibration: got %d, want 5", got)
	}
}

func TestListener_CalibrateFeedsVAD(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	in.PushPCM(silence(3)...)
	sess := &vadmock.Session{ThresholdResult: 123, EventResult: vad.VADEvent{Type: vad.VADSilence}}
	eng := &vadmock.Engine{Session: sess}
	l := listener.New(&audiomock.Device{In: in}, eng, &sttmock.Provider{}, listener.WithFormat(rate, rate/10))
	defer l.Stop(true)

	if err := l.Calibrate(context.Background(), 300*time.Millisecond); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if sess.CalibrateCallCount != 3 {
		t.Errorf("calibrate calls: got %d, want 3", sess.CalibrateCallCount)
	}
	if l.Threshold() != 123 {
		t.Errorf("threshold: got %v", l.Threshold())
	}
	if got := eng.NewSessionCalls[0].Cfg.SampleRate; got != rate {
		t.Errorf("vad sample rate: got %d", got)
	}
}

func TestListener_CalibrateCancelled(t *testing.T) {
	t.Parallel()
	l := newListener(t, audiomock.NewInput(micFormat), &sttmock.Provider{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Calibrate(ctx, time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Calibrate: got %v, want DeadlineExceeded", err)
	}
}

func TestListener_CalibrateDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	in := audiomock.NewInput(micFormat)
	l := newListener(t, in, &sttmock.Provider{})

	calErr := make(chan error, 1)
	go func() { calErr <- l.Calibrate(context.Background(), time.Second) }()
	deadline := time.Now().Add(2 * time.Second)
	for in.ReadCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// The microphone has no audio, so calibration is stuck in Read.
	got := make(chan float64, 1)
	go func() { got <- l.Threshold() }()
	select {
	case th := <-got:
		if th != 300 {
			t.Errorf("threshold during calibration: got %v, want 300", th)
		}
	case <-time.After(time.Second):
		t.Fatal("Threshold blocked behind Calibrate")
	}
	cb, _ := collect()
	if err := l.Start(context.Background(), cb); !errors.Is(err, listener.ErrCalibrating) {
		t.Errorf("Start during calibration: got %v, want ErrCalibrating", err)
	}
	if err := l.Calibrate(context.Background(), time.Second); !errors.Is(err, listener.ErrCalibrating) {
		t.Errorf("second Calibrate: got %v, want ErrCalibrating", err)
	}

	stopped := make(chan struct{})
	go func() {
		l.Stop(true)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked behind Calibrate")
	}
	if err := <-calErr; !errors.Is(err, listener.ErrStopped) {
		t.Errorf("Calibrate after Stop: got %v, want ErrStopped", err)
	}
}
