// Package ui provides the interactive surface the reconciliation flow talks
// to. The engine treats the surface as a pure prompt-to-response function:
// it never assumes a particular transport, so any CLI or UI can implement it.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// Surface is the interaction boundary between the engine and a human.
type Surface interface {
	// AskYesNo asks a yes/no question and returns the answer.
	AskYesNo(prompt string) (bool, error)

	// AskChoice asks the user to pick one of the given options and returns
	// the selected option. Input is matched case-insensitively and re-asked
	// until it matches.
	AskChoice(prompt string, options []string) (string, error)

	// AskNumber asks for a monetary amount. Currency symbols and thousands
	// separators are tolerated.
	AskNumber(prompt string) (domain.Money, error)

	// AskDate asks for a calendar date in YYYY-MM-DD form.
	AskDate(prompt string) (time.Time, error)

	// Show displays a block of text to the user.
	Show(text string)
}

// Console is a Surface over an input reader and output writer, normally
// stdin/stdout.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates a Surface over stdin/stdout.
func NewConsole() *Console {
	return &Console{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewConsoleWith creates a Surface over the given reader and writer.
func NewConsoleWith(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// AskYesNo asks until the user answers yes/y or no/n.
func (c *Console) AskYesNo(prompt string) (bool, error) {
	for {
		answer, err := c.readLine(prompt + " (yes/no): ")
		if err != nil {
			return false, err
		}

		switch strings.ToLower(answer) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
		fmt.Fprintln(c.out, "Please answer yes or no.")
	}
}

// AskChoice asks until the answer matches one of the options.
func (c *Console) AskChoice(prompt string, options []string) (string, error) {
	for {
		answer, err := c.readLine(prompt)
		if err != nil {
			return "", err
		}

		answer = strings.ToLower(answer)
		for _, opt := range options {
			if answer == strings.ToLower(opt) {
				return opt, nil
			}
		}
		fmt.Fprintf(c.out, "Please enter one of: %s\n", strings.Join(options, ", "))
	}
}

// AskNumber asks until the answer parses as an exact decimal amount.
func (c *Console) AskNumber(prompt string) (domain.Money, error) {
	for {
		answer, err := c.readLine(prompt)
		if err != nil {
			return domain.Money{}, err
		}

		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(answer)
		amount, err := domain.NewMoneyFromString(cleaned)
		if err == nil {
			return amount, nil
		}
		fmt.Fprintln(c.out, "Invalid amount. Example: 1234.56 or $1,234.56")
	}
}

// AskDate asks until the answer parses as a YYYY-MM-DD date.
func (c *Console) AskDate(prompt string) (time.Time, error) {
	for {
		answer, err := c.readLine(prompt)
		if err != nil {
			return time.Time{}, err
		}

		date, err := time.Parse(domain.DateLayout, strings.TrimSpace(answer))
		if err == nil {
			return date, nil
		}
		fmt.Fprintln(c.out, "Invalid date format. Please use YYYY-MM-DD.")
	}
}

// Show writes a block of text to the output.
func (c *Console) Show(text string) {
	fmt.Fprintln(c.out, text)
}

func (c *Console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(line), nil
}
