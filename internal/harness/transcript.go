package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/testutil"
	"github.com/roach88/cloister/internal/transport"
)

// Transcript renders the played turns as plain text: one header per turn,
// one line per transport call with the message text indented below, and the
// turn's outcome.
//
//	[turn-1] Brother Anselm (101) in 101: /newcode
//	  send 101#2
//	    | Generated code: 0427
//	  => ok
func Transcript(sc *Scenario, r *Result) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n", sc.Name)
	fmt.Fprintf(&b, "# %s\n", sc.Description)
	for _, t := range r.Turns {
		b.WriteByte('\n')
		writeTurn(&b, t)
	}
	return b.Bytes()
}

func writeTurn(b *bytes.Buffer, t Turn) {
	fmt.Fprintf(b, "[%s] %s in %d: %s\n", t.Token, actorName(t.Actor), t.Chat, input(t))
	for _, c := range t.Calls {
		writeCall(b, c)
	}
	fmt.Fprintf(b, "  => %s\n", t.Outcome)
}

func actorName(a model.Actor) string {
	if a.DisplayName == "" {
		return fmt.Sprintf("(%d)", a.ID)
	}
	return fmt.Sprintf("%s (%d)", a.DisplayName, a.ID)
}

func input(t Turn) string {
	switch t.Step.kind() {
	case "command":
		return "/" + t.Step.Command
	case "text":
		return `"` + *t.Step.Text + `"`
	default:
		return fmt.Sprintf("press %s on %s", t.Step.Press, refString(t.Target))
	}
}

func refString(ref model.MessageRef) string {
	if ref.MessageID == 0 {
		return fmt.Sprintf("%d", ref.Chat)
	}
	return fmt.Sprintf("%d#%d", ref.Chat, ref.MessageID)
}

func writeCall(b *bytes.Buffer, c testutil.Call) {
	switch c.Op {
	case testutil.OpAnswer:
		fmt.Fprintf(b, "  answer %s", c.ActionID)
		if c.Text != "" {
			fmt.Fprintf(b, " %q", c.Text)
		}
	default:
		fmt.Fprintf(b, "  %s %s", c.Op, refString(c.Ref))
		if c.Err == nil && c.Keyboard != nil {
			b.WriteString(" " + keyboardString(c.Keyboard))
		}
	}
	if c.Err != nil {
		fmt.Fprintf(b, " failed: %v\n", c.Err)
		return
	}
	b.WriteByte('\n')

	if c.Op == testutil.OpSend || c.Op == testutil.OpEdit {
		for _, line := range strings.Split(c.Text, "\n") {
			if line == "" {
				b.WriteString("    |\n")
				continue
			}
			fmt.Fprintf(b, "    | %s\n", line)
		}
	}
}

func keyboardString(kb *transport.Keyboard) string {
	rows := make([]string, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]string, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, btn.Label+" -> "+btn.Tag)
		}
		rows = append(rows, "["+strings.Join(buttons, " | ")+"]")
	}
	return strings.Join(rows, " ")
}
