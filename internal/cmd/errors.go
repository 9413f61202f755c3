package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

var (
	errorStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

// usageError reports a bad invocation. It maps to the usage exit code.
func usageError(msg string) error {
	return errors.NewValidationError(msg)
}

// PrintError writes err to w. Coded errors are shown with their code,
// suggestions and documentation link on separate lines.
func PrintError(w io.Writer, err error) {
	var te *errors.TirecodeError
	if !stderrors.As(err, &te) {
		fmt.Fprintf(w, "%s %v\n", errorStyle.Render("Error:"), err)
		return
	}

	var b strings.Builder
	b.WriteString(errorStyle.Render(fmt.Sprintf("Error [%s]:", te.Code)))
	b.WriteString(" " + te.Message)
	if te.Cause != nil {
		b.WriteString(": " + te.Cause.Error())
	}
	b.WriteString("\n")

	if len(te.Suggestions) > 0 {
		b.WriteString("\n")
		for _, s := range te.Suggestions {
			b.WriteString(suggestionStyle.Render("  → "+s) + "\n")
		}
	}
	if te.DocsURL != "" {
		b.WriteString("\nDocumentation: " + te.DocsURL + "\n")
	}

	fmt.Fprint(w, b.String())
}
