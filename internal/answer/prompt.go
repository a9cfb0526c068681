// Package answer implements the read path: embed the question, retrieve
// the most similar chunks, compose a grounded prompt, and invoke the
// generative model.
package answer

import (
	"fmt"
	"strings"

	"github.com/bull/kb-server/internal/storage"
)

// SystemInstruction restricts the model to the provided context. Together
// with the cite-sources trailer it is the no-hallucination contract of the
// whole feature, so the wording is part of the observable behavior.
const SystemInstruction = "You are an internal knowledge base assistant. Answer concisely using ONLY the provided policy " +
	"context. If the answer is not in the context, say you don't know and suggest uploading more relevant documents."

// NoContextAnswer is returned verbatim when retrieval finds nothing. The
// generator is never invoked in that case.
const NoContextAnswer = "No relevant documents found in the knowledge base."

// contextDelimiter separates retrieved passages in the prompt.
const contextDelimiter = "\n\n---\n\n"

// BuildPrompt assembles the grounded prompt: the system instruction, each
// retrieved chunk prefixed with its source label in retrieval-ranked
// order, the verbatim question, and the cite-sources instruction.
func BuildPrompt(question string, results []*storage.ScoredPoint) string {
	pieces := make([]string, len(results))
	for i, r := range results {
		src := r.Point.Source
		if src == "" {
			src = fmt.Sprintf("doc%d", i+1)
		}
		pieces[i] = fmt.Sprintf("[%s]\n%s", src, r.Point.Text)
	}
	context := strings.Join(pieces, contextDelimiter)

	var b strings.Builder
	b.WriteString(SystemInstruction)
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString(context)
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(question)
	b.WriteString("\n\nAnswer briefly. At the end, list sources used.")
	return b.String()
}
