package listener

import (
	"bytes"
	"testing"
	"time"

	"github.com/MrWong99/oculus/pkg/provider/vad"
	"github.com/MrWong99/oculus/pkg/provider/vad/mock"
)

const testRate = 16000

// chunk returns 100ms of PCM filled with b.
func chunk(b byte) []byte {
	return bytes.Repeat([]byte{b}, testRate/10*2)
}

func ev(t vad.VADEventType, p float64) vad.VADEvent {
	return vad.VADEvent{Type: t, Probability: p}
}

func newSegmenter(sess vad.SessionHandle) *segmenter {
	return &segmenter{
		sess:       sess,
		sampleRate: testRate,
		preRoll:    200 * time.Millisecond,
		minPhrase:  100 * time.Millisecond,
	}
}

func TestSegmenter_PhraseWithPreRoll(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{
		Script: []vad.VADEvent{
			ev(vad.VADSilence, 0),
			ev(vad.VADSilence, 0),
			ev(vad.VADSilence, 0),
			ev(vad.VADSpeechStart, 1),
			ev(vad.VADSpeechContinue, 1),
			ev(vad.VADSpeechContinue, 0),
			ev(vad.VADSpeechEnd, 0),
		},
		EventResult: ev(vad.VADSilence, 0),
	}
	s := newSegmenter(sess)
	input := [][]byte{chunk(1), chunk(2), chunk(3), chunk(4), chunk(5), chunk(6), chunk(7)}

	var got []byte
	for i, c := range input {
		p, err := s.push(c)
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if p != nil {
			if got != nil {
				t.Fatal("more than one phrase")
			}
			got = p
		}
	}
	want := bytes.Join(input[1:], nil)
	if !bytes.Equal(got, want) {
		t.Errorf("phrase: got %d bytes starting %d, want %d bytes starting 2", len(got), got[0], len(want))
	}
}

func TestSegmenter_ShortPhraseDiscarded(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{
		Script: []vad.VADEvent{
			ev(vad.VADSpeechStart, 1),
			ev(vad.VADSpeechContinue, 0),
			ev(vad.VADSpeechEnd, 0),
		},
		EventResult: ev(vad.VADSilence, 0),
	}
	s := newSegmenter(sess)
	s.minPhrase = 300 * time.Millisecond
	for range 3 {
		if p, _ := s.push(chunk(9)); p != nil {
			t.Fatal("100ms of voice must not produce a phrase")
		}
	}
}

func TestSegmenter_TimeLimit(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{
		Script:      []vad.VADEvent{ev(vad.VADSpeechStart, 1)},
		EventResult: ev(vad.VADSpeechContinue, 1),
	}
	s := newSegmenter(sess)
	s.limit = 300 * time.Millisecond

	var phrases int
	for range 6 {
		p, err := s.push(chunk(1))
		if err != nil {
			t.Fatal(err)
		}
		if p != nil {
			phrases++
			if len(p) != 3*len(chunk(1)) {
				t.Errorf("phrase length: got %d bytes", len(p))
			}
		}
	}
	if phrases != 1 {
		t.Errorf("phrases: got %d, want 1", phrases)
	}
	if sess.ResetCallCount != 1 {
		t.Errorf("vad reset: got %d, want 1", sess.ResetCallCount)
	}
}

func TestSegmenter_Flush(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{
		Script:      []vad.VADEvent{ev(vad.VADSpeechStart, 1)},
		EventResult: ev(vad.VADSpeechContinue, 1),
	}
	s := newSegmenter(sess)
	if s.flush() != nil {
		t.Fatal("flush without a phrase must return nil")
	}
	s.push(chunk(1))
	s.push(chunk(2))
	p := s.flush()
	if !bytes.Equal(p, append(chunk(1), chunk(2)...)) {
		t.Errorf("flushed phrase: got %d bytes", len(p))
	}
	if s.flush() != nil {
		t.Error("second flush must return nil")
	}
}
