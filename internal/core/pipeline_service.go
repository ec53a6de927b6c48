package core

import (
	"fmt"
	"log"
	"strings"
)

// MaxRefinements bounds the generate/validate feedback loop. Counting the
// initial attempt, at most MaxRefinements+1 SQL candidates are produced for
// one query regardless of what the validator says.
const MaxRefinements = 3

type PipelineService struct {
	llm TextGenerator
}

func NewPipelineService(llm TextGenerator) *PipelineService {
	return &PipelineService{llm: llm}
}

// PipelineResult is the outcome of one full sequencer run for a query.
type PipelineResult struct {
	SQL         string   `json:"sql"`
	Preview     string   `json:"preview"`
	Refinements int      `json:"refinements"`
	Converged   bool     `json:"converged"`
	Issues      []string `json:"issues,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

// AnalyzeSchema runs the schema analysis stage on its own. The summary it
// returns feeds the generation stage of later runs.
func (s *PipelineService) AnalyzeSchema(schemaText string) (string, error) {
	analysis, err := s.llm.GenerateText(schemaAnalystInstruction, buildSchemaAnalysisPrompt(schemaText))
	if err != nil {
		return "", fmt.Errorf("schema analysis stage: %w", err)
	}
	return strings.TrimSpace(analysis), nil
}

// Run executes the remaining stages in strict order: SQL generation, SQL
// validation with the bounded refinement loop, then results preview. Any
// stage failure aborts the run; nothing is retried.
func (s *PipelineService) Run(schemaText, schemaAnalysis, queryText string) (*PipelineResult, error) {
	sqlText, err := s.llm.GenerateText(sqlGeneratorInstruction, buildGenerationPrompt(schemaAnalysis, queryText, "", ""))
	if err != nil {
		return nil, fmt.Errorf("sql generation stage: %w", err)
	}
	sqlText = stripSQLFences(sqlText)

	result := &PipelineResult{}
	for {
		verdict, err := s.llm.GenerateVerdict(sqlValidatorInstruction, buildValidationPrompt(schemaText, queryText, sqlText))
		if err != nil {
			return nil, fmt.Errorf("sql validation stage: %w", err)
		}

		result.Issues = verdict.Issues
		result.Explanation = verdict.Explanation
		if verdict.MatchesIntent {
			result.Converged = true
			break
		}
		if result.Refinements >= MaxRefinements {
			log.Printf("Refinement bound reached after %d re-attempts, surfacing last SQL", result.Refinements)
			break
		}
		result.Refinements++

		// A concrete fix from the validator is adopted directly and
		// re-validated; otherwise the generator gets another attempt
		// with the feedback appended.
		if fix := strings.TrimSpace(verdict.SuggestedFix); fix != "" {
			sqlText = stripSQLFences(fix)
			continue
		}
		sqlText, err = s.llm.GenerateText(sqlGeneratorInstruction,
			buildGenerationPrompt(schemaAnalysis, queryText, sqlText, verdictFeedback(verdict)))
		if err != nil {
			return nil, fmt.Errorf("sql generation stage (refinement %d): %w", result.Refinements, err)
		}
		sqlText = stripSQLFences(sqlText)
	}
	result.SQL = sqlText

	preview, err := s.llm.GenerateText(resultsPreviewerInstruction, buildPreviewPrompt(schemaText, sqlText))
	if err != nil {
		return nil, fmt.Errorf("results preview stage: %w", err)
	}
	result.Preview = strings.TrimSpace(preview)

	return result, nil
}

func verdictFeedback(verdict *Verdict) string {
	var parts []string
	for _, issue := range verdict.Issues {
		parts = append(parts, "- "+issue)
	}
	if verdict.Explanation != "" {
		parts = append(parts, verdict.Explanation)
	}
	if len(parts) == 0 {
		return "The SQL does not match the user's intent."
	}
	return strings.Join(parts, "\n")
}
