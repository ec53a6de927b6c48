package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `CREATE TABLE customers (customer_id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE orders (order_id INTEGER PRIMARY KEY, customer_id INTEGER, total_amount REAL);`

const testQuery = "total spent per customer over 500"

const testSQL = `SELECT c.name, SUM(o.total_amount) AS total_spent
FROM customers c JOIN orders o ON o.customer_id = c.customer_id
GROUP BY c.name HAVING SUM(o.total_amount) > 500;`

// stubModel is a deterministic TextGenerator for sequencer tests.
type stubModel struct {
	textCalls    int
	verdictCalls int

	onText    func(call int, system, prompt string) (string, error)
	onVerdict func(call int, system, prompt string) (*Verdict, error)
}

func (m *stubModel) GenerateText(system, prompt string) (string, error) {
	m.textCalls++
	return m.onText(m.textCalls, system, prompt)
}

func (m *stubModel) GenerateVerdict(system, prompt string) (*Verdict, error) {
	m.verdictCalls++
	return m.onVerdict(m.verdictCalls, system, prompt)
}

func approvingStub() *stubModel {
	return &stubModel{
		onText: func(call int, system, prompt string) (string, error) {
			switch system {
			case schemaAnalystInstruction:
				return "Two tables: customers and orders, joined on customer_id.", nil
			case sqlGeneratorInstruction:
				return testSQL, nil
			case resultsPreviewerInstruction:
				return "name | total_spent\nAlice | 812.50\nNote: illustrative sample only, not real data.", nil
			default:
				return "", fmt.Errorf("unexpected system instruction %q", system)
			}
		},
		onVerdict: func(call int, system, prompt string) (*Verdict, error) {
			return &Verdict{MatchesIntent: true, Explanation: "The SQL matches intent."}, nil
		},
	}
}

func TestPipelineConvergesOnFirstValidation(t *testing.T) {
	model := approvingStub()
	svc := NewPipelineService(model)

	analysis, err := svc.AnalyzeSchema(testSchema)
	require.NoError(t, err)
	require.NotEmpty(t, analysis)

	result, err := svc.Run(testSchema, analysis, testQuery)
	require.NoError(t, err)

	assert.Equal(t, testSQL, result.SQL)
	assert.Equal(t, 0, result.Refinements)
	assert.True(t, result.Converged)
	assert.Contains(t, result.Preview, "illustrative sample only")

	// Exactly four stage calls: analysis, generation, validation, preview.
	assert.Equal(t, 3, model.textCalls)
	assert.Equal(t, 1, model.verdictCalls)
}

func TestPipelineRefinementBound(t *testing.T) {
	model := approvingStub()
	model.onVerdict = func(call int, system, prompt string) (*Verdict, error) {
		return &Verdict{
			MatchesIntent: false,
			Issues:        []string{"missing HAVING clause"},
			Explanation:   "The query does not filter on the total.",
		}, nil
	}

	result, err := NewPipelineService(model).Run(testSchema, "analysis", testQuery)
	require.NoError(t, err)

	// The loop must terminate after exactly MaxRefinements re-attempts and
	// still surface the last generated SQL.
	assert.Equal(t, MaxRefinements, result.Refinements)
	assert.False(t, result.Converged)
	assert.Equal(t, testSQL, result.SQL)
	assert.Equal(t, []string{"missing HAVING clause"}, result.Issues)

	// 1 initial generation + 3 refinement generations + 1 preview.
	assert.Equal(t, 5, model.textCalls)
	assert.Equal(t, MaxRefinements+1, model.verdictCalls)
}

func TestPipelineAdoptsSuggestedFix(t *testing.T) {
	fixed := "SELECT 1; -- fixed"
	model := approvingStub()
	model.onVerdict = func(call int, system, prompt string) (*Verdict, error) {
		if call == 1 {
			return &Verdict{
				MatchesIntent: false,
				Issues:        []string{"wrong join column"},
				SuggestedFix:  "```sql\n" + fixed + "\n```",
			}, nil
		}
		require.Contains(t, prompt, fixed, "second validation should see the adopted fix")
		return &Verdict{MatchesIntent: true}, nil
	}

	result, err := NewPipelineService(model).Run(testSchema, "analysis", testQuery)
	require.NoError(t, err)

	assert.Equal(t, fixed, result.SQL)
	assert.Equal(t, 1, result.Refinements)
	assert.True(t, result.Converged)
	// Adopting the fix must not spend a generation call.
	assert.Equal(t, 2, model.textCalls) // initial generation + preview
	assert.Equal(t, 2, model.verdictCalls)
}

func TestPipelineRefinementFeedbackReachesGenerator(t *testing.T) {
	model := approvingStub()
	model.onVerdict = func(call int, system, prompt string) (*Verdict, error) {
		if call == 1 {
			return &Verdict{MatchesIntent: false, Issues: []string{"sum the wrong column"}}, nil
		}
		return &Verdict{MatchesIntent: true}, nil
	}
	var refinementPrompt string
	base := model.onText
	model.onText = func(call int, system, prompt string) (string, error) {
		if system == sqlGeneratorInstruction && strings.Contains(prompt, "Validator feedback") {
			refinementPrompt = prompt
		}
		return base(call, system, prompt)
	}

	result, err := NewPipelineService(model).Run(testSchema, "analysis", testQuery)
	require.NoError(t, err)
	require.Equal(t, 1, result.Refinements)

	assert.Contains(t, refinementPrompt, "sum the wrong column")
	assert.Contains(t, refinementPrompt, testSQL, "prior SQL should be included for correction")
}

func TestPipelineIsDeterministicGivenFixedResponses(t *testing.T) {
	run := func() *PipelineResult {
		model := approvingStub()
		model.onVerdict = func(call int, system, prompt string) (*Verdict, error) {
			if call < 3 {
				return &Verdict{MatchesIntent: false, Issues: []string{"needs work"}}, nil
			}
			return &Verdict{MatchesIntent: true}, nil
		}
		result, err := NewPipelineService(model).Run(testSchema, "analysis", testQuery)
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Refinements, second.Refinements)
	assert.Equal(t, first.Converged, second.Converged)
}

func TestPipelineAbortsOnValidationFailure(t *testing.T) {
	model := approvingStub()
	model.onVerdict = func(call int, system, prompt string) (*Verdict, error) {
		return nil, fmt.Errorf("%w: connection reset", ErrGenerationFailed)
	}

	result, err := NewPipelineService(model).Run(testSchema, "analysis", testQuery)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	// The preview stage must not have run.
	assert.Equal(t, 1, model.textCalls)
}

func TestPipelineAbortsOnPreviewFailure(t *testing.T) {
	model := approvingStub()
	base := model.onText
	model.onText = func(call int, system, prompt string) (string, error) {
		if system == resultsPreviewerInstruction {
			return "", fmt.Errorf("%w: quota exceeded", ErrGenerationFailed)
		}
		return base(call, system, prompt)
	}

	_, err := NewPipelineService(model).Run(testSchema, "analysis", testQuery)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationFailed))
}

func TestPipelineStripsCodeFencesFromGeneratedSQL(t *testing.T) {
	model := approvingStub()
	base := model.onText
	model.onText = func(call int, system, prompt string) (string, error) {
		if system == sqlGeneratorInstruction {
			return "```sql\nSELECT 1;\n```", nil
		}
		return base(call, system, prompt)
	}

	result, err := NewPipelineService(model).Run(testSchema, "analysis", testQuery)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", result.SQL)
}
