package feedback

import "strings"

// Result is one successful analysis response.
type Result struct {
	Score               float64              `json:"score"`
	PositiveFeedback    string               `json:"positiveFeedback"`
	ImprovementPoints   string               `json:"improvementPoints"`
	AudioURL            string               `json:"audioUrl"`
	SpokenTranscript    string               `json:"spokenTranscript,omitempty"`
	VoiceRecommendation *VoiceRecommendation `json:"voiceRecommendation,omitempty"`
}

type VoiceRecommendation struct {
	VoiceOption          VoiceOption `json:"voiceOption"`
	RecommendedTone      string      `json:"recommendedTone"`
	RecommendationReason string      `json:"recommendationReason"`
	ConfidenceScore      float64     `json:"confidenceScore"`
}

type VoiceOption struct {
	VoiceID        string   `json:"voiceId"`
	Name           string   `json:"name"`
	Gender         string   `json:"gender"`
	Accent         string   `json:"accent"`
	Description    string   `json:"description"`
	SupportedTones []string `json:"supportedTones"`
}

func (v VoiceOption) SupportsTone(tone string) bool {
	for _, t := range v.SupportedTones {
		if strings.EqualFold(t, tone) {
			return true
		}
	}
	return false
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.VoiceRecommendation != nil {
		vr := *r.VoiceRecommendation
		vr.VoiceOption.SupportedTones = append([]string(nil), vr.VoiceOption.SupportedTones...)
		c.VoiceRecommendation = &vr
	}
	return &c
}
