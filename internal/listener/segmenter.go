package listener

import (
	"time"

	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/provider/vad"
)

// voicedProbability is the VAD probability at or above which a frame counts
// as voiced when measuring phrase length.
const voicedProbability = 0.5

// segmenter cuts a stream of mono PCM frames into phrases using a VAD
// session. It is not safe for concurrent use.
type segmenter struct {
	sess       vad.SessionHandle
	sampleRate int
	preRoll    time.Duration
	minPhrase  time.Duration
	limit      time.Duration

	// pre holds the most recent frames seen before speech started.
	pre    [][]byte
	preDur time.Duration

	speaking bool
	phrase   []byte
	spoken   time.Duration // audio since onset, pre-roll excluded
	trailing time.Duration // unvoiced audio since the last voiced frame
}

// push feeds one frame and returns a finished phrase, or nil while a phrase
// is still open or the frame was silence. Phrases whose voiced part is
// shorter than minPhrase are discarded.
func (s *segmenter) push(pcm []byte) ([]byte, error) {
	ev, err := s.sess.ProcessFrame(pcm)
	if err != nil {
		return nil, err
	}
	dur := audio.Duration(pcm, s.sampleRate, 1)

	if !s.speaking {
		if ev.Type != vad.VADSpeechStart {
			s.keepPreRoll(pcm, dur)
			return nil, nil
		}
		s.speaking = true
		s.phrase = s.phrase[:0]
		for _, b := range s.pre {
			s.phrase = append(s.phrase, b...)
		}
		s.pre, s.preDur = s.pre[:0], 0
		s.spoken, s.trailing = 0, 0
	}

	s.phrase = append(s.phrase, pcm...)
	s.spoken += dur
	if ev.Probability >= voicedProbability {
		s.trailing = 0
	} else {
		s.trailing += dur
	}

	switch {
	case ev.Type == vad.VADSpeechEnd:
		return s.finish(), nil
	case s.limit > 0 && s.spoken >= s.limit:
		s.sess.Reset()
		return s.finish(), nil
	}
	return nil, nil
}

// flush ends an open phrase, e.g. when the microphone closes mid-sentence.
func (s *segmenter) flush() []byte {
	if !s.speaking {
		return nil
	}
	s.sess.Reset()
	return s.finish()
}

func (s *segmenter) finish() []byte {
	s.speaking = false
	voiced := s.spoken - s.trailing
	if voiced < s.minPhrase {
		s.phrase = s.phrase[:0]
		return nil
	}
	out := make([]byte, len(s.phrase))
	copy(out, s.phrase)
	s.phrase = s.phrase[:0]
	return out
}

func (s *segmenter) keepPreRoll(pcm []byte, dur time.Duration) {
	if s.preRoll <= 0 {
		return
	}
	s.pre = append(s.pre, append([]byte(nil), pcm...))
	s.preDur += dur
	for len(s.pre) > 1 && s.preDur-audio.Duration(s.pre[0], s.sampleRate, 1) >= s.preRoll {
		s.preDur -= audio.Duration(s.pre[0], s.sampleRate, 1)
		s.pre = s.pre[1:]
	}
}
