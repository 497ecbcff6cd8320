package shell

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var bashBlockPattern = regexp.MustCompile("```bash\n([\\s\\S]*?)\n```")

// ExpandBlocks finds fenced bash blocks in generated text, executes each
// through the runner, and splices the command output after its block. The
// abort token is checked before every block; once tripped, the remaining
// text is passed through untouched with a note.
func (r *Runner) ExpandBlocks(ctx context.Context, abort Aborter, text string) string {
	matches := bashBlockPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		if (abort != nil && abort.Aborted()) || ctx.Err() != nil {
			out.WriteString(text[last:])
			out.WriteString("\n\n[remaining bash commands aborted]\n")
			return out.String()
		}

		command := strings.TrimSpace(text[m[2]:m[3]])
		if command == "" {
			continue
		}

		out.WriteString(text[last:m[0]])
		out.WriteString("```bash\n")
		out.WriteString(command)
		out.WriteString("\n```\n")

		result, err := r.Run(ctx, abort, command)
		if err != nil {
			out.WriteString(fmt.Sprintf("[⏱ 0.00s | ✗ | exit 1]\nerror: %v\n", err))
		} else {
			out.WriteString(result)
		}
		last = m[1]
	}
	if last < len(text) {
		out.WriteString(text[last:])
	}
	return out.String()
}
