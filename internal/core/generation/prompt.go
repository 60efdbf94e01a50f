package generation

import (
	"fmt"
	"strings"

	"github.com/jinford/persona-rag/internal/core/retrieval"
)

// systemPromptTemplate は回答生成の固定プリアンブル。
// コンテキストに含まれる情報のみで回答し、足りない場合は丁寧に断るよう指示する。
const systemPromptTemplate = `You are the friendly and knowledgeable AI assistant of %s. You help recruiters, hiring managers and other professionals learn more about %s's background, experience, and expertise using information from their CV, blog posts, GitHub projects, and other documents.

Instructions:
- Answer questions in a warm, helpful, and engaging tone.
- Use ONLY the provided context to answer questions. Do not guess or make anything up.
- When possible, include specific examples from the context to support your answers.
- If a question goes beyond the available context, say so politely and offer to help with what is available.
- Keep answers clear, concise, and informative.
- Never include personal opinions, speculation, or assumptions beyond what is in the context.
- If a question is irrelevant, inappropriate, or not covered by the context, respond respectfully and decline to answer.

Context Information:
%s

Remember: you are representing %s. Be accurate and grounded.`

// noContextPlaceholder はコンテキストが1件もない場合に挿入される
const noContextPlaceholder = "(no relevant context was found for this question)"

// BuildSystemPrompt はペルソナのプリアンブルと検索コンテキストから
// システムプロンプトを構築する。コンテキストはスコア降順で渡される前提で、
// 同一入力に対して決定的な文字列を返す。
func BuildSystemPrompt(ownerName string, contexts []*retrieval.ScoredChunk) string {
	var sb strings.Builder

	if len(contexts) == 0 {
		sb.WriteString(noContextPlaceholder)
	}

	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		heading := c.Chunk.Heading
		if heading == "" {
			heading = string(c.Chunk.Type)
		}
		sb.WriteString(fmt.Sprintf("[Context %d - %s | source: %s (relevance: %.2f)]:\n", i+1, heading, c.Chunk.Source, c.Score))
		sb.WriteString(c.Chunk.Text)
	}

	return fmt.Sprintf(systemPromptTemplate, ownerName, ownerName, sb.String(), ownerName)
}

// BuildUserPrompt はユーザー質問部のプロンプトを構築する
func BuildUserPrompt(question string) string {
	return fmt.Sprintf("Question: %s\n\nPlease provide a helpful answer based on the context above.", question)
}
