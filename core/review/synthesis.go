package review

import (
	"context"
	"strings"
)

// SynthesisInstructions is the fixed policy handed to the Summarizer.
var SynthesisInstructions = []string{
	"Identify the strengths the reviewers consistently agree on.",
	"Identify the weaknesses the reviewers consistently point out.",
	"Note where the reviewers' assessments conflict.",
	"Write between 150 and 200 words.",
}

type (
	SynthesisEntry struct {
		ReviewID          int
		Score             int
		MaxScore          int
		Feedback          string
		CriterionFeedback []string
	}

	// SynthesisRequest holds the completed reviews of one submission, oldest completion first.
	SynthesisRequest struct {
		SubmissionID   int
		PriorSynthesis string
		Entries        []SynthesisEntry
		Instructions   []string
	}

	// Summarizer combines several reviews into one narrative.
	// An empty result means no synthesis.
	Summarizer interface {
		Summarize(ctx context.Context, req SynthesisRequest) (string, error)
	}
)

// synthesize combines the completed reviews of a submission once there are at least two of them.
// Failures are logged and swallowed.
func (svc *Service) synthesize(ctx context.Context, submissionID, maxScore int) {
	recs, err := svc.repo.ListBySubmission(ctx, submissionID)
	if err != nil {
		svc.logger.Warn("review.synthesize: listing reviews", err)
		return
	}
	done := completedInOrder(recs)
	if len(done) < 2 {
		return
	}
	if done, err = svc.withScores(ctx, done); err != nil {
		svc.logger.Warn("review.synthesize", err)
		return
	}
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		svc.logger.Warn("review.synthesize: getting submission", err)
		return
	}

	req := SynthesisRequest{
		SubmissionID:   submissionID,
		PriorSynthesis: sub.Synthesis.String,
		Entries:        make([]SynthesisEntry, 0, len(done)),
		Instructions:   SynthesisInstructions,
	}
	for _, rec := range done {
		entry := SynthesisEntry{
			ReviewID: rec.ID,
			Score:    rec.TotalScore,
			MaxScore: maxScore,
			Feedback: rec.OverallFeedback.String,
		}
		for _, sc := range rec.Scores {
			if fb := strings.TrimSpace(sc.Feedback); fb != "" {
				entry.CriterionFeedback = append(entry.CriterionFeedback, fb)
			}
		}
		req.Entries = append(req.Entries, entry)
	}

	text, err := svc.summarizer.Summarize(ctx, req)
	if err != nil {
		svc.logger.Warn("review.synthesize: summarizing", err, map[string]interface{}{"submission_id": submissionID})
		return
	}
	if text = strings.TrimSpace(text); text == "" {
		svc.logger.Info("review.synthesize: empty synthesis", map[string]interface{}{"submission_id": submissionID})
		return
	}
	if err := svc.repo.SetSubmissionSynthesis(ctx, submissionID, text, svc.now()); err != nil {
		svc.logger.Warn("review.synthesize: saving synthesis", err)
	}
}
