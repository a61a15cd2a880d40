package feedback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Result {
	return &Result{
		Score:             7,
		PositiveFeedback:  "Clear opening.",
		ImprovementPoints: "Vary your pace.",
		AudioURL:          "https://cdn/x.mp3",
		VoiceRecommendation: &VoiceRecommendation{
			VoiceOption: VoiceOption{
				VoiceID: "en-US-natalie", Name: "Natalie", Gender: "Female", Accent: "US",
				SupportedTones: []string{"confident", "conversational"},
			},
			RecommendedTone: "confident",
			ConfidenceScore: 0.82,
		},
	}
}

func TestResultAndErrorExclusive(t *testing.T) {
	s := NewStore()

	s.SetError("TTS quota exceeded")
	msg, ok := s.Error()
	assert.True(t, ok)
	assert.Equal(t, "TTS quota exceeded", msg)
	_, ok = s.Result()
	assert.False(t, ok)

	s.SetResult(sample())
	_, ok = s.Error()
	assert.False(t, ok)
	r, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, sample(), r)

	s.SetError("again")
	_, ok = s.Result()
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.SetResult(sample())
	s.Clear()
	_, okR := s.Result()
	_, okE := s.Error()
	assert.False(t, okR)
	assert.False(t, okE)
}

func TestResultIsCopied(t *testing.T) {
	s := NewStore()
	in := sample()
	s.SetResult(in)
	in.Score = 1
	in.VoiceRecommendation.VoiceOption.SupportedTones[0] = "urgent"

	r, _ := s.Result()
	assert.Equal(t, 7.0, r.Score)
	assert.Equal(t, "confident", r.VoiceRecommendation.VoiceOption.SupportedTones[0])

	r.PositiveFeedback = "changed"
	r2, _ := s.Result()
	assert.Equal(t, "Clear opening.", r2.PositiveFeedback)
}

func TestScoreBadge(t *testing.T) {
	for _, tt := range []struct {
		score float64
		want  string
	}{
		{7, "7/10"},
		{0, "0/10"},
		{10, "10/10"},
		{6.5, "6.5/10"},
		{6.96, "7/10"},
		{6.04, "6/10"},
		{3.33, "3.3/10"},
	} {
		assert.Equal(t, tt.want, ScoreBadge(tt.score))
	}
}

func TestScoreBand(t *testing.T) {
	assert.Equal(t, BandGood, ScoreBand(8))
	assert.Equal(t, BandFair, ScoreBand(7.9))
	assert.Equal(t, BandFair, ScoreBand(5))
	assert.Equal(t, BandPoor, ScoreBand(4))
	assert.Equal(t, "fair", BandFair.String())
}

func TestSupportsTone(t *testing.T) {
	v := sample().VoiceRecommendation.VoiceOption
	assert.True(t, v.SupportsTone("Confident"))
	assert.False(t, v.SupportsTone("urgent"))
	assert.False(t, VoiceOption{}.SupportsTone("confident"))
}

func TestFormatExport(t *testing.T) {
	out := FormatExport(sample())
	for _, want := range []string{"Overall score: 7/10", "Clear opening.", "Vary your pace.",
		"Natalie (Female, US), tone: confident, confidence 82%", "https://cdn/x.mp3"} {
		assert.True(t, strings.Contains(out, want), "missing %q in:\n%s", want, out)
	}
	assert.NotContains(t, out, "What you said")
	assert.Equal(t, "", FormatExport(nil))
}
