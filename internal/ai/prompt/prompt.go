// Package prompt builds the instructions sent to every generation provider.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

const System = "You are a patient tutor reviewing a student's answer to an exercise. " +
	"Be specific, concise, and address the student directly."

// maxAnswerBytes keeps very long student answers from crowding out the instructions.
const maxAnswerBytes = 4000

// Evaluate asks for a description of the student's weaknesses.
func Evaluate(req models.GenerationRequest) string {
	var b strings.Builder
	writeExercise(&b, req)
	b.WriteString("\nIdentify the misconceptions or gaps in knowledge that this answer reveals. ")
	b.WriteString("Name each weakness in one or two sentences. Do not give the full solution.\n")
	return b.String()
}

// Guide asks for step-by-step guidance toward the correct answer.
func Guide(req models.GenerationRequest) string {
	var b strings.Builder
	writeExercise(&b, req)
	b.WriteString("\nExplain step by step how to reach the correct answer, ")
	b.WriteString("pointing out where the student's reasoning went wrong.\n")
	return b.String()
}

func writeExercise(b *strings.Builder, req models.GenerationRequest) {
	q := req.Question
	if q.Subject != "" {
		fmt.Fprintf(b, "Subject: %s\n", q.Subject)
	}
	fmt.Fprintf(b, "Question: %s\n", q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(b, "  %c) %s\n", 'A'+rune(i%26), opt)
	}
	if q.CorrectAnswer != "" {
		fmt.Fprintf(b, "Correct answer: %s\n", q.CorrectAnswer)
	}
	if q.Explanation != "" {
		fmt.Fprintf(b, "Reference explanation: %s\n", q.Explanation)
	}
	answer := strings.TrimSpace(req.StudentAnswer)
	if answer == "" {
		answer = "(no answer given)"
	}
	fmt.Fprintf(b, "Student answer: %s\n", Truncate(answer, maxAnswerBytes))
}

// Truncate truncates s to maxBytes without splitting UTF-8 runes.
func Truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
