package chat

import (
	"fmt"
	"strings"

	"docrag-be/internal/entity"
	"docrag-be/pkg/llm"
)

const sourceExternal = "external"

// ContextualBuilder assembles the generation request for one turn: a system
// prompt carrying the reference material, the conversation window and the
// user question.
type ContextualBuilder struct {
	query     string
	history   []llm.Message
	retrieval *entity.RetrievalResult
}

func NewContextualBuilder(query string, history []llm.Message, retrieval *entity.RetrievalResult) *ContextualBuilder {
	return &ContextualBuilder{query: query, history: history, retrieval: retrieval}
}

func (b *ContextualBuilder) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, len(b.history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: b.system()})
	msgs = append(msgs, b.history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: b.query})
	return msgs
}

func (b *ContextualBuilder) system() string {
	var prompt strings.Builder

	b.writeTask(&prompt)
	if b.retrieval.IsEmpty() {
		b.writeNoContext(&prompt)
		return prompt.String()
	}
	b.writeReferenceMaterial(&prompt)
	b.writeGuidelines(&prompt)
	return prompt.String()
}

func (b *ContextualBuilder) writeTask(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a knowledgeable assistant answering questions about the user's documents.\n")
	prompt.WriteString("Earlier turns of the conversation are included; use them to resolve follow-up questions.\n")
	prompt.WriteString("</task>\n\n")
}

func (b *ContextualBuilder) writeReferenceMaterial(prompt *strings.Builder) {
	prompt.WriteString("<reference_material>\n")
	if b.retrieval.Source == sourceExternal {
		prompt.WriteString("(retrieved from an external encyclopedia, not from the user's documents)\n")
	}
	for i, p := range b.retrieval.Passages {
		fmt.Fprintf(prompt, "[%d] %s\n%s\n\n", i+1, p.DocumentName, strings.TrimSpace(p.Content))
	}
	prompt.WriteString("</reference_material>\n\n")
}

func (b *ContextualBuilder) writeGuidelines(prompt *strings.Builder) {
	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("1. Base your answer strictly on the reference material\n")
	prompt.WriteString("2. Cite passages by their number, e.g. [1]\n")
	prompt.WriteString("3. If the material does not contain the answer, say so honestly\n")
	prompt.WriteString("</guidelines>\n")
}

func (b *ContextualBuilder) writeNoContext(prompt *strings.Builder) {
	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("No passage of the user's documents matched this question.\n")
	prompt.WriteString("Answer from general knowledge and state clearly that the answer is not grounded in the documents.\n")
	prompt.WriteString("</guidelines>\n")
}
