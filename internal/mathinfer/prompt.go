// Package mathinfer cleans up noisy OCR of mathematical expressions with a
// language model.
package mathinfer

import "strings"

const (
	FormatLaTeX  = "latex"
	FormatMathML = "mathml"
	FormatPlain  = "plain"
)

// BuildPrompt renders the fixed instruction prompt. The notation line names
// MathML only for the mathml format; every other format asks for LaTeX.
func BuildPrompt(ocrText, hint, format string) string {
	target := "LaTeX"
	if strings.ToLower(format) == FormatMathML {
		target = "MathML"
	}

	var b strings.Builder
	b.WriteString("You are a math reasoning assistant. ")
	b.WriteString("You receive noisy OCR output for mathematical expressions and should:\n")
	b.WriteString("1) Correct obvious OCR errors.\n")
	b.WriteString("2) Output a clean version of the math.\n")
	b.WriteString("3) Provide the expression in " + target + " and a short plain-language explanation.\n\n")
	if hint != "" {
		b.WriteString("Context: " + hint + "\n\n")
	}
	b.WriteString("OCR text:\n" + ocrText + "\n\n")
	b.WriteString("Respond in JSON with keys: cleaned_text, latex, mathml, explanation.")
	return b.String()
}
