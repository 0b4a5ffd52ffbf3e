package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/oculus/pkg/provider/llm"
	llmmock "github.com/MrWong99/oculus/pkg/provider/llm/mock"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	sttmock "github.com/MrWong99/oculus/pkg/provider/stt/mock"
	"github.com/MrWong99/oculus/pkg/provider/tts"
	ttsmock "github.com/MrWong99/oculus/pkg/provider/tts/mock"
)

func TestGroup_PrimarySuccess(t *testing.T) {
	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
	g.Add("secondary", "secondary")

	got, err := Call(g, func(v string) (string, error) { return v, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Fatalf("got %q, want primary", got)
	}
}

func TestGroup_Failover(t *testing.T) {
	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
	g.Add("secondary", "secondary")

	got, err := Call(g, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("got %q, want secondary", got)
	}
}

func TestGroup_AllFail(t *testing.T) {
	g := NewGroup("a", 1, BreakerConfig{})
	g.Add("b", 2)

	_, err := Call(g, func(int) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want member errors joined", err)
	}
}

func TestGroup_SkipsOpenBreaker(t *testing.T) {
	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	g.Add("secondary", "secondary")

	var primaryCalls int
	fn := func(v string) (string, error) {
		if v == "primary" {
			primaryCalls++
			return "", errTest
		}
		return v, nil
	}
	for i := 0; i < 3; i++ {
		if _, err := Call(g, fn); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if primaryCalls != 1 {
		t.Errorf("primary called %d times, want 1 (breaker should open)", primaryCalls)
	}
}

func TestGroup_PermanentStopsWalk(t *testing.T) {
	g := NewGroup("a", "a", BreakerConfig{})
	g.Add("b", "b")
	var calls []string
	_, err := Call(g, func(v string) (string, error) {
		calls = append(calls, v)
		return "", Permanent(errTest)
	})
	if !errors.Is(err, errTest) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the primary", calls)
	}
}

func TestGroup_Names(t *testing.T) {
	g := NewGroup("openai", 0, BreakerConfig{})
	g.Add("gemini", 1)
	names := g.Names()
	if len(names) != 2 || names[0] != "openai" || names[1] != "gemini" {
		t.Errorf("Names() = %v", names)
	}
}

func TestLLM_Failover(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}

	f := NewLLM("primary", primary, BreakerConfig{MaxFailures: 3})
	f.Add("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 || len(secondary.CompleteCalls) != 1 {
		t.Errorf("calls: primary=%d secondary=%d", len(primary.CompleteCalls), len(secondary.CompleteCalls))
	}
}

func TestLLM_CapabilitiesFromPrimary(t *testing.T) {
	primary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{SupportsVision: true}}
	f := NewLLM("primary", primary, BreakerConfig{})
	f.Add("secondary", &llmmock.Provider{})
	if !f.Capabilities().SupportsVision {
		t.Error("expected primary capabilities")
	}
}

func TestSTT_UnrecognizedDoesNotFailOver(t *testing.T) {
	primary := &sttmock.Provider{Fallback: sttmock.Result{Err: stt.ErrUnrecognized}}
	secondary := &sttmock.Provider{Fallback: sttmock.Result{Text: "hello"}}

	f := NewSTT("primary", primary, BreakerConfig{MaxFailures: 1})
	f.Add("secondary", secondary)

	_, err := f.Transcribe(context.Background(), stt.Utterance{})
	if !errors.Is(err, stt.ErrUnrecognized) {
		t.Fatalf("err = %v, want ErrUnrecognized", err)
	}
	if secondary.CallCount() != 0 {
		t.Error("secondary must not be consulted for unrecognized speech")
	}
}

func TestSTT_Failover(t *testing.T) {
	primary := &sttmock.Provider{Fallback: sttmock.Result{Err: errTest}}
	secondary := &sttmock.Provider{Fallback: sttmock.Result{Text: "hello"}}

	f := NewSTT("primary", primary, BreakerConfig{})
	f.Add("secondary", secondary)

	tr, err := f.Transcribe(context.Background(), stt.Utterance{})
	if err != nil || tr.Text != "hello" {
		t.Fatalf("got %q, %v", tr.Text, err)
	}
}

func TestTTS_FailoverOnSetup(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errTest}
	secondary := &ttsmock.Provider{Chunks: [][]byte{{1, 2}}}

	f := NewTTS("primary", primary, BreakerConfig{})
	f.Add("secondary", secondary)

	ch, err := f.SynthesizeStream(context.Background(), "hi", tts.Voice{ID: "alloy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var n int
	for c := range ch {
		n += len(c.PCM)
	}
	if n != 2 {
		t.Errorf("received %d bytes, want 2", n)
	}
}

func TestTTS_ListVoices(t *testing.T) {
	f := NewTTS("p", &ttsmock.Provider{Voices: []tts.Voice{{ID: "alloy"}}}, BreakerConfig{})
	vs, err := f.ListVoices(context.Background())
	if err != nil || len(vs) != 1 {
		t.Fatalf("got %v, %v", vs, err)
	}
}
