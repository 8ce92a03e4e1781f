package notes

import (
	"fmt"
	"unicode/utf8"
)

// DefaultMaxBodyChars stays below GitHub's 65536 character comment limit.
const DefaultMaxBodyChars = 60000

const promptsOmittedNote = "- Prompts omitted to fit GitHub comment size limits."

// Layout describes which reductions were applied to a rendered document.
type Layout struct {
	Block       string
	OmitPrompts bool
	Notes       []string
}

// Renderer renders a full document for the given layout.
type Renderer func(layout Layout) (string, error)

// Fit renders block and, when the result exceeds limit code points, first
// drops the prompts section and then keeps fewer log entries until it fits.
// The entry for required is always kept. An oversized document is never
// returned.
func Fit(render Renderer, block string, required SessionKey, limit int, hasPrompts bool) (string, Layout, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyChars
	}

	layout := Layout{Block: block}
	body, err := render(layout)
	if err != nil {
		return "", layout, err
	}
	if utf8.RuneCountInString(body) <= limit {
		return body, layout, nil
	}

	if hasPrompts {
		layout.OmitPrompts = true
		layout.Notes = append(layout.Notes, promptsOmittedNote)
		if body, err = render(layout); err != nil {
			return "", layout, err
		}
		if utf8.RuneCountInString(body) <= limit {
			return body, layout, nil
		}
	}

	total := len(ParseEntries(block))
	for keep := total - 1; keep >= 1; keep-- {
		candidate := Layout{
			Block:       NormalizeEntries(block, &required, keep),
			OmitPrompts: layout.OmitPrompts,
			Notes:       append(append([]string(nil), layout.Notes...), truncatedNote(keep)),
		}
		if body, err = render(candidate); err != nil {
			return "", candidate, err
		}
		if utf8.RuneCountInString(body) <= limit {
			return body, candidate, nil
		}
	}

	return "", layout, fmt.Errorf("%w (%d chars > %d); reduce payload verbosity and retry",
		ErrTooLarge, utf8.RuneCountInString(body), limit)
}

func truncatedNote(keep int) string {
	return fmt.Sprintf("- Session log truncated to last `%d` entries to fit GitHub comment size limits.", keep)
}
