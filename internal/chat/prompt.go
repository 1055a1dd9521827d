package chat

import "strings"

const promptTemplate = `Answer the question based only on the following context and the conversation history:

Context:
{context}

Conversation history:
{history}

---

Question: {question}`

// BuildPrompt fills the answer template.
func BuildPrompt(context, history, question string) string {
	r := strings.NewReplacer("{context}", context, "{history}", history, "{question}", question)
	return r.Replace(promptTemplate)
}
