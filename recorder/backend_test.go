package recorder

import (
	"testing"

	"coach/audio"
	"coach/transcriber"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	actx := &audio.FakeContext{}
	rec := &transcriber.FakeRecognizer{}

	tests := []struct {
		name        string
		strategy    string
		rec         transcriber.Recognizer
		want        string
		transcribes bool
		wantErr     bool
	}{
		{"auto without recognizer", StrategyAuto, nil, "blob", false, false},
		{"auto with recognizer", StrategyAuto, rec, "live/fake", true, false},
		{"empty means auto", "", nil, "blob", false, false},
		{"blob ignores recognizer", StrategyBlob, rec, "blob", false, false},
		{"live", StrategyLive, rec, "live/fake", true, false},
		{"live needs recognizer", StrategyLive, nil, "", false, true},
		{"unknown", "hybrid", rec, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Detect(tt.strategy, actx, nil, tt.rec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Name())
			assert.Equal(t, tt.transcribes, b.Transcribes())
		})
	}
}

func TestDetectWithoutAudio(t *testing.T) {
	_, err := Detect(StrategyBlob, nil, nil, nil)
	var cu *CaptureUnavailableError
	assert.ErrorAs(t, err, &cu)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "locked_ready", LockedReady.String())
	assert.Equal(t, "submitting", Submitting.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, Error.canStart())
	assert.False(t, Recording.canStart())
	assert.False(t, Submitting.canStart())
}
