package feedback

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Band int

const (
	BandPoor Band = iota
	BandFair
	BandGood
)

func (b Band) String() string {
	switch b {
	case BandGood:
		return "good"
	case BandFair:
		return "fair"
	default:
		return "poor"
	}
}

func ScoreBand(score float64) Band {
	switch {
	case score >= 8:
		return BandGood
	case score >= 5:
		return BandFair
	default:
		return BandPoor
	}
}

// ScoreBadge renders a score out of ten, e.g. "7/10" or "6.5/10".
func ScoreBadge(score float64) string {
	return strconv.FormatFloat(math.Round(score*10)/10, 'f', -1, 64) + "/10"
}

// FormatExport builds the plain-text document written by the save-feedback
// export.
func FormatExport(r *Result) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Presentation Feedback\n")
	b.WriteString("=====================\n\n")
	fmt.Fprintf(&b, "Overall score: %s\n\n", ScoreBadge(r.Score))
	b.WriteString("What went well:\n")
	b.WriteString(r.PositiveFeedback)
	b.WriteString("\n\nAreas for improvement:\n")
	b.WriteString(r.ImprovementPoints)
	b.WriteString("\n")
	if r.SpokenTranscript != "" {
		b.WriteString("\nWhat you said:\n")
		b.WriteString(r.SpokenTranscript)
		b.WriteString("\n")
	}
	if vr := r.VoiceRecommendation; vr != nil {
		b.WriteString("\nRecommended voice:\n")
		fmt.Fprintf(&b, "%s (%s, %s), tone: %s, confidence %.0f%%\n",
			vr.VoiceOption.Name, vr.VoiceOption.Gender, vr.VoiceOption.Accent,
			vr.RecommendedTone, vr.ConfidenceScore*100)
		if vr.RecommendationReason != "" {
			b.WriteString(vr.RecommendationReason)
			b.WriteString("\n")
		}
	}
	if r.AudioURL != "" {
		fmt.Fprintf(&b, "\nIdeal delivery audio: %s\n", r.AudioURL)
	}
	return b.String()
}
