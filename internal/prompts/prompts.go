package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Chat Prompts
// ============================================================================

// ChatSystemPrompt defines the assistant's role for store support chat.
const ChatSystemPrompt = `You are the customer support assistant for an online store.
Answer in the same language as the customer's question.

Rules:
- When a knowledge base context is provided, base your answer on it and do not invent facts that contradict it.
- If the context does not contain the answer, say you are not sure and suggest contacting the support team.
- When products are listed, recommend at most three and mention their names and prices exactly as given.
- Keep answers short: a few sentences or a compact list.`

// GroundedUserTemplate wraps the question with retrieved context.
const GroundedUserTemplate = `Knowledge base context:
%s

Customer question: %s

Answer:`

// DirectUserTemplate is used when nothing relevant was retrieved.
const DirectUserTemplate = `No knowledge base context matched this question.

Customer question: %s

Answer:`

// BuildChatUserPrompt renders the user turn, choosing the grounded template when
// knowledge is non-empty.
func BuildChatUserPrompt(question, knowledge string) string {
	if strings.TrimSpace(knowledge) == "" {
		return fmt.Sprintf(DirectUserTemplate, question)
	}
	return fmt.Sprintf(GroundedUserTemplate, knowledge, question)
}
