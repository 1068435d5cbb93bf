package technique

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

const (
	retrievalDecisionPrompt = "Does answering the following question require looking up external documents, or can it be answered directly (e.g. small talk, general knowledge)? Answer with exactly one word: yes or no."
	relevanceLabelPrompt    = "Rate how relevant the passage is to the question. Answer with exactly one label: fully_relevant, partially_relevant, or not_relevant."
	supportLabelPrompt      = "Does the answer's claims fully follow from the context, partially follow, or not follow at all? Answer with exactly one label: fully, partially, none."
	utilityScorePrompt      = "Rate how useful this answer is to the question on a scale of 1 to 5. Output only the integer."
)

var selfReflectiveNumberPattern = regexp.MustCompile(`\d+`)

// SelfReflective decides whether retrieval is needed at all, filters
// retrieved candidates by an LLM relevance judgment, then generates multiple
// candidate answers and keeps the one with the best composite
// support/utility score.
type SelfReflective struct {
	deps Deps
}

type selfRAGCandidate struct {
	answer    string
	support   int
	utility   int
	composite int
}

func (s *SelfReflective) Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	trc := tracer.New()
	return run(NameSelfReflective, trc, func() ragtypes.TechniqueResult {
		trc.Log("init", previewText(query, 100), map[string]any{"top_k": topK})

		if ctx.Err() != nil {
			trc.Log("retrieval_decision_error", ctx.Err().Error(), nil)
			return errResult(NameSelfReflective, trc, cancelOrTimeout(ctx))
		}

		decision, err := s.deps.LLM.Complete(ctx, retrievalDecisionPrompt, query, 0, 4)
		if err != nil {
			trc.Log("retrieval_decision_error", err.Error(), nil)
			return errResult(NameSelfReflective, trc, classifyLLMErr(ctx, err))
		}
		needsRetrieval := strings.Contains(strings.ToLower(decision), "yes")
		trc.Log("self_rag_retrieval_decision", "decided whether retrieval is needed", map[string]any{
			"needs_retrieval": needsRetrieval,
		})

		if !needsRetrieval {
			return s.answerWithoutRetrieval(ctx, trc, query)
		}
		return s.answerWithRetrieval(ctx, trc, query, documentIDs, topK)
	})
}

func (s *SelfReflective) answerWithoutRetrieval(ctx context.Context, trc *tracer.Tracer, query string) ragtypes.TechniqueResult {
	answer, generationTime, errKind := generate(ctx, NameSelfReflective, s.deps.LLM, trc, query, nil)
	if errKind != ragtypes.ErrorKindNone {
		return errResult(NameSelfReflective, trc, errKind)
	}
	return ragtypes.TechniqueResult{
		TechniqueName:  NameSelfReflective,
		AnswerText:     answer,
		Trace:          trc.Events(),
		GenerationTime: generationTime,
		TotalTime:      generationTime,
	}
}

func (s *SelfReflective) answerWithRetrieval(ctx context.Context, trc *tracer.Tracer, query string, documentIDs []string, topK int) ragtypes.TechniqueResult {
	retrievalStart := time.Now()
	trc.Log("retrieve_prepare", "embedding query", nil)

	if ctx.Err() != nil {
		trc.Log("retrieve_error", ctx.Err().Error(), nil)
		return errResult(NameSelfReflective, trc, cancelOrTimeout(ctx))
	}

	vector, err := s.deps.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		trc.Log("retrieve_error", err.Error(), nil)
		return errResult(NameSelfReflective, trc, classifyRetrievalErr(ctx, err))
	}

	candidates, err := s.deps.Index.SimilaritySearch(ctx, vector, topK, filterFor(documentIDs))
	if err != nil {
		trc.Log("retrieve_error", err.Error(), nil)
		return errResult(NameSelfReflective, trc, classifyRetrievalErr(ctx, err))
	}
	trc.Log("retrieve_complete", "similarity search complete", map[string]any{
		"result_count": len(candidates),
		"top_scores":   topScores(candidates, 3),
	})

	relevant := make([]ragtypes.RetrievedChunk, 0, len(candidates))
	dropped := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			trc.Log("relevance_label_error", ctx.Err().Error(), nil)
			return errResult(NameSelfReflective, trc, cancelOrTimeout(ctx))
		}
		label, err := s.deps.LLM.Complete(ctx, relevanceLabelPrompt, fmt.Sprintf("Question: %s\n\nPassage: %s", query, c.Text), 0, 8)
		if err != nil {
			// A single labeling failure does not fail the technique; the
			// candidate is kept rather than silently dropped on infrastructure
			// noise unrelated to its actual relevance.
			relevant = append(relevant, c)
			continue
		}
		if strings.Contains(strings.ToLower(label), "not_relevant") {
			dropped++
			continue
		}
		relevant = append(relevant, c)
	}
	retrievalTime := time.Since(retrievalStart)
	trc.Log("self_rag_relevance_filter", "filtered candidates by relevance", map[string]any{
		"kept":    len(relevant),
		"dropped": dropped,
	})

	if len(relevant) == 0 {
		return s.answerWithoutRetrieval(ctx, trc, query)
	}

	const numCandidates = 2
	candidateAnswers := make([]selfRAGCandidate, 0, numCandidates)
	genStart := time.Now()
	contextText := formatContext(relevant)

	for i := 0; i < numCandidates; i++ {
		if ctx.Err() != nil {
			trc.Log("generate_error", ctx.Err().Error(), nil)
			return errResult(NameSelfReflective, trc, cancelOrTimeout(ctx))
		}
		answer, err := s.deps.LLM.Complete(ctx, answerSystemPrompt, generationPrompt(query, contextText), 0.7, 512)
		if err != nil {
			trc.Log("generate_error", err.Error(), nil)
			continue
		}

		support := s.scoreSupport(ctx, contextText, answer)
		utility := s.scoreUtility(ctx, query, answer)
		candidateAnswers = append(candidateAnswers, selfRAGCandidate{
			answer:    answer,
			support:   support,
			utility:   utility,
			composite: 5*support + utility,
		})
	}
	generationTime := time.Since(genStart)

	if len(candidateAnswers) == 0 {
		trc.Log("generate_error", "all candidate generations failed", nil)
		return errResult(NameSelfReflective, trc, ragtypes.ErrorKindLLMFailed)
	}

	best := candidateAnswers[0]
	losers := make([]map[string]any, 0, len(candidateAnswers)-1)
	for _, c := range candidateAnswers[1:] {
		if c.composite > best.composite || (c.composite == best.composite && len(c.answer) < len(best.answer)) {
			losers = append(losers, map[string]any{"composite": best.composite, "preview": previewText(best.answer, 100)})
			best = c
		} else {
			losers = append(losers, map[string]any{"composite": c.composite, "preview": previewText(c.answer, 100)})
		}
	}
	trc.Log("self_rag_answer_eval", "selected best candidate answer", map[string]any{
		"winner_composite": best.composite,
		"losers":           losers,
	})
	trc.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(best.answer),
		"answer_preview": previewText(best.answer, 150),
	})

	return ragtypes.TechniqueResult{
		TechniqueName:   NameSelfReflective,
		AnswerText:      best.answer,
		RetrievedChunks: relevant,
		Trace:           trc.Events(),
		RetrievalTime:   retrievalTime,
		GenerationTime:  generationTime,
		TotalTime:       retrievalTime + generationTime,
	}
}

// scoreSupport maps the LLM's fully/partially/none judgment to {3, 1, 0}. An
// unparseable or failed judgment counts as no support rather than panicking
// the composite score computation.
func (s *SelfReflective) scoreSupport(ctx context.Context, contextText, answer string) int {
	raw, err := s.deps.LLM.Complete(ctx, supportLabelPrompt, fmt.Sprintf("Context:\n%s\n\nAnswer: %s", contextText, answer), 0, 8)
	if err != nil {
		return 0
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "fully"):
		return 3
	case strings.Contains(lower, "partially"):
		return 1
	default:
		return 0
	}
}

// scoreUtility tolerantly extracts the 1-5 utility rating, defaulting to 1
// (the floor of the scale) when the judge's response cannot be parsed.
func (s *SelfReflective) scoreUtility(ctx context.Context, query, answer string) int {
	raw, err := s.deps.LLM.Complete(ctx, utilityScorePrompt, fmt.Sprintf("Question: %s\n\nAnswer: %s", query, answer), 0, 8)
	if err != nil {
		return 1
	}
	match := selfReflectiveNumberPattern.FindString(raw)
	if match == "" {
		return 1
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 1
	}
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	return n
}
