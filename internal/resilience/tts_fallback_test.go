package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/castmix/pkg/provider/tts"
	ttsmock "github.com/MrWong99/castmix/pkg/provider/tts/mock"
)

func newTTSChain(primary, secondary *ttsmock.Provider) *TTSFallback {
	fb := NewTTSFallback(primary, "coqui", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour},
	})
	fb.AddFallback("elevenlabs", secondary)
	return fb
}

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary, secondary := &ttsmock.Provider{}, &ttsmock.Provider{}
	fb := newTTSChain(primary, secondary)

	seg, err := fb.Synthesize(context.Background(), "hello there", tts.VoiceProfile{ID: "p225"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !seg.Equal(ttsmock.Tone(200)) {
		t.Errorf("unexpected audio: %d frames", seg.Frames())
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 0 {
		t.Errorf("calls primary=%d secondary=%d, want 1/0", len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestTTSFallback_FailoverUsesDefaultVoice(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("server down")}
	secondary := &ttsmock.Provider{}
	fb := newTTSChain(primary, secondary)
	fb.SetDefaultVoice("elevenlabs", tts.VoiceProfile{ID: "rachel", Name: "Rachel"})

	voice := tts.VoiceProfile{ID: "p225", Provider: "coqui", SpeedFactor: 1.2}
	if _, err := fb.Synthesize(context.Background(), "hi", voice); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	calls := secondary.Calls()
	if len(calls) != 1 {
		t.Fatalf("secondary calls = %d, want 1", len(calls))
	}
	got := calls[0].Voice
	if got.ID != "rachel" || got.Provider != "elevenlabs" || got.SpeedFactor != 1.2 {
		t.Errorf("fallback voice = %+v", got)
	}
}

func TestTTSFallback_PrefersVoiceProvider(t *testing.T) {
	t.Parallel()
	primary, secondary := &ttsmock.Provider{}, &ttsmock.Provider{}
	fb := newTTSChain(primary, secondary)

	voice := tts.VoiceProfile{ID: "rachel", Provider: "elevenlabs"}
	if _, err := fb.Synthesize(context.Background(), "hi", voice); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(primary.Calls()) != 0 || len(secondary.Calls()) != 1 {
		t.Errorf("calls primary=%d secondary=%d, want 0/1", len(primary.Calls()), len(secondary.Calls()))
	}
	if got := secondary.Calls()[0].Voice; got.ID != "rachel" {
		t.Errorf("voice = %+v, want unchanged", got)
	}
}

func TestTTSFallback_AllFailIsSynthesisError(t *testing.T) {
	t.Parallel()
	fb := newTTSChain(
		&ttsmock.Provider{SynthesizeErr: errors.New("quota")},
		&ttsmock.Provider{SynthesizeErr: errors.New("timeout")},
	)
	_, err := fb.Synthesize(context.Background(), "hi", tts.VoiceProfile{ID: "v1"})

	var synthErr *tts.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
	if synthErr.Provider != "fallback" || synthErr.Voice != "v1" {
		t.Errorf("error detail = %+v", synthErr)
	}
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed in chain", err)
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	t.Parallel()

	t.Run("merges and tags", func(t *testing.T) {
		t.Parallel()
		fb := newTTSChain(
			&ttsmock.Provider{ListVoicesResult: []tts.VoiceProfile{{ID: "p225"}}},
			&ttsmock.Provider{ListVoicesErr: errors.New("unauthorized")},
		)
		voices, err := fb.ListVoices(context.Background())
		if err != nil {
			t.Fatalf("ListVoices: %v", err)
		}
		if len(voices) != 1 || voices[0].Provider != "coqui" {
			t.Errorf("voices = %+v", voices)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		t.Parallel()
		fb := newTTSChain(
			&ttsmock.Provider{ListVoicesErr: errors.New("a")},
			&ttsmock.Provider{ListVoicesErr: errors.New("b")},
		)
		if _, err := fb.ListVoices(context.Background()); !errors.Is(err, ErrAllFailed) {
			t.Errorf("err = %v, want ErrAllFailed", err)
		}
	})
}
