package core

import (
	"fmt"
	"strings"
)

// Per-stage system instructions. The wording stays close to the personas the
// pipeline was designed around: a schema expert, an SQL author, a meticulous
// validator, and a previewer that fabricates illustrative rows.
const (
	schemaAnalystInstruction = "You are a database expert who analyzes and understands database schemas. " +
		"Identify tables, columns, relationships, and data types accurately."

	sqlGeneratorInstruction = "You are an SQL expert who converts natural language queries into precise SQL commands " +
		"based on database schemas. Return ONLY the SQL command. No markdown, no explanation."

	sqlValidatorInstruction = "You are a meticulous SQL validator who ensures SQL commands are correct, efficient, " +
		"and match the user's intent and the database schema. Respond with the requested JSON object only."

	resultsPreviewerInstruction = "You are a database assistant that illustrates what an SQL query would return. " +
		"You have no access to real data: invent a small, plausible sample result set consistent with the schema. " +
		"Render it as a plain-text table of at most 5 rows, followed by the line " +
		"'Note: illustrative sample only, not real data.'"
)

func buildSchemaAnalysisPrompt(schemaText string) string {
	return fmt.Sprintf(`Analyze this database schema and provide a comprehensive understanding of it:

%s

Please identify:
1. All tables and their purposes
2. All columns in each table and their data types
3. Primary keys and foreign keys
4. Relationships between tables
5. Any constraints or special considerations

Format your response as a structured analysis that could be used to generate SQL queries.`, schemaText)
}

// buildGenerationPrompt formats the generation stage prompt. On refinement
// passes the validator's feedback is appended so the model can correct the
// previous attempt.
func buildGenerationPrompt(schemaAnalysis, queryText, priorSQL, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Based on the following database schema analysis:

%s

Convert this natural language query into a proper SQL command:

"%s"

Provide only the SQL command without any explanation. Make sure the SQL follows best practices and is optimized.`, schemaAnalysis, queryText)

	if feedback != "" {
		fmt.Fprintf(&b, `

A previous attempt was rejected by a validator. Previous SQL:

%s

Validator feedback:
%s

Produce a corrected SQL command that addresses this feedback.`, priorSQL, feedback)
	}
	return b.String()
}

func buildValidationPrompt(schemaText, queryText, generatedSQL string) string {
	return fmt.Sprintf(`You need to validate if this SQL query correctly answers the user's request and is compatible with the database schema.

Database Schema:
%s

User's Natural Language Query:
"%s"

Generated SQL Query:
`+"```sql\n%s\n```"+`

Provide your assessment in this exact JSON format:
{
    "matches_intent": true/false,
    "issues": ["issue1", "issue2", ...] (empty list if no issues),
    "suggested_fix": "fixed SQL query" (empty string if there are no issues),
    "explanation": "brief explanation of issues or confirmation of validity"
}

Return ONLY the JSON without any additional text.`, schemaText, queryText, generatedSQL)
}

func buildPreviewPrompt(schemaText, generatedSQL string) string {
	return fmt.Sprintf(`Given this database schema:

%s

Show what running the following SQL query might return:

`+"```sql\n%s\n```", schemaText, generatedSQL)
}

// stripSQLFences removes a surrounding markdown code fence, which models
// tend to add despite being told not to.
func stripSQLFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
