package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

type PromptKind string

const (
	PromptAccounts    PromptKind = "accounts"
	PromptSwitchChain PromptKind = "switch_chain"
	PromptAddChain    PromptKind = "add_chain"
	PromptSign        PromptKind = "sign"
)

// Prompt is a question the wallet puts to its user.
type Prompt struct {
	Kind    PromptKind
	Message string
}

// Prompter answers wallet prompts. A false answer is a rejection.
type Prompter interface {
	Confirm(ctx context.Context, prompt Prompt) (bool, error)
}

// AutoApprove accepts every prompt. Used by the API server and non-interactive commands.
type AutoApprove struct{}

func (AutoApprove) Confirm(context.Context, Prompt) (bool, error) {
	return true, nil
}

// TerminalPrompter asks on Out and reads a y/N answer from In.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func (p *TerminalPrompter) Confirm(ctx context.Context, prompt Prompt) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	if _, err := fmt.Fprintf(p.Out, "%s [y/N]: ", prompt.Message); err != nil {
		return false, err
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
