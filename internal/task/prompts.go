package task

import "fmt"

// PromptBuilder turns an extraction goal and page content into a full
// model prompt. The default forces strict JSON output; callers may inject
// their own builder for other providers.
type PromptBuilder func(goal, content string) string

const extractionPromptTemplate = `You are a precise data extraction assistant.

You are given the text content of a web page and an extraction goal.
Answer the goal using ONLY the page content. Do not invent information.

RESPONSE FORMAT:
Respond with a SINGLE JSON object and nothing else.

On success:
{"answer": "the extracted information as plain text", "confidence": 0.95}

If the page does not contain the requested information:
{"error": "short explanation of what is missing"}

EXAMPLES:

Goal: What is the price of the product?
Page: ... Wireless Mouse MX-3 $24.99 In stock ...
Response: {"answer": "$24.99", "confidence": 0.97}

Goal: Who is the author of the article?
Page: ... Posted on May 3 in Engineering ...
Response: {"error": "no author is mentioned on the page"}

EXTRACTION GOAL:
%s

PAGE CONTENT:
%s`

// DefaultPromptBuilder builds the few-shot strict-JSON extraction prompt.
func DefaultPromptBuilder(goal, content string) string {
	return fmt.Sprintf(extractionPromptTemplate, goal, content)
}
