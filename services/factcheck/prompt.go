package factcheck

import (
	"fmt"

	"github.com/AleutianAI/miras/services/llm"
)

// validationPromptTemplate asks for claim-by-claim verification. The
// "be generous" note matters: without it the model fails facts over
// rounding differences like $3.8bn vs $3,786mm.
const validationPromptTemplate = `You are a fact-checking expert. Your job is simple:

USER QUERY: %s

RESPONSE PROVIDED: %s

%s

Your tasks:
1. Check if the query is answered: YES or NO
2. Extract each factual claim from the response
3. Verify each fact against the document: TRUE or FALSE

For example, if response says "AUM is $3.8bn in May 2021", that's one fact to check.

Return JSON with this structure:
{
    "query_answered": true/false,
    "facts_checked": [
        {
            "fact": "The exact factual claim from the response",
            "verified": true/false,
            "page_found": "page number if found, or null"
        }
    ],
    "overall_accuracy": "percentage of facts that are true"
}

Be generous - if a fact is essentially correct (e.g., $3.8bn vs $3,786mm), mark it TRUE.
Focus on whether facts are correct, not on minor rounding or formatting differences.`

const factCheckPromptTemplate = `Check if this statement is factually accurate based on the given context:

STATEMENT: %s

CONTEXT: %s

Return JSON:
{
    "is_accurate": true/false,
    "confidence": 0-100,
    "explanation": "why it is or isn't accurate",
    "supporting_evidence": "quote from context if found"
}`

// validationPrompt renders the fact-checking prompt. An empty doc
// tells the model explicitly that no document is available rather
// than leaving the section out.
func validationPrompt(query, answer, doc string) string {
	docSection := "FULL DOCUMENT NOT AVAILABLE"
	if doc != "" {
		docSection = "FULL DOCUMENT FOR VERIFICATION:\n" + doc
	}
	return fmt.Sprintf(validationPromptTemplate, query, answer, docSection)
}

func factCheckPrompt(statement, factContext string) string {
	return fmt.Sprintf(factCheckPromptTemplate, statement, factContext)
}

// resultSchema constrains the validation response shape so parsing
// does not depend on prompt compliance alone.
func resultSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"query_answered": {Type: "boolean"},
			"facts_checked": {
				Type: "array",
				Items: &llm.Schema{
					Type: "object",
					Properties: map[string]*llm.Schema{
						"fact":       {Type: "string", Description: "The exact factual claim from the response"},
						"verified":   {Type: "boolean"},
						"page_found": {Type: "string", Description: "Page number if found, or empty"},
					},
					Required: []string{"fact", "verified"},
				},
			},
			"overall_accuracy": {Type: "string", Description: "Percentage of facts that are true"},
		},
		Required: []string{"query_answered", "facts_checked"},
	}
}

func factCheckSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"is_accurate":         {Type: "boolean"},
			"confidence":          {Type: "integer"},
			"explanation":         {Type: "string"},
			"supporting_evidence": {Type: "string"},
		},
		Required: []string{"is_accurate", "confidence", "explanation"},
	}
}
