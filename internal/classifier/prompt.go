package classifier

import (
	"fmt"
	"strings"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

const systemPrompt = `You are a content moderator for a web-novel publishing platform.
Check the submitted text for: sexual content involving minors, explicit pornography, graphic gore,
incitement to violence or terrorism, hate speech, illegal drug trade, gambling promotion,
personal data of real people, political extremism, advertising or spam links.
Fiction may depict conflict and mature themes; reject only content that violates the rules above.

Answer with ONE JSON object and nothing else:
{"auditStatus": <1 = pass, 2 = reject>, "aiConfidence": <0.0-1.0>, "auditReason": "<short reason>"}`

// Input - всё, что нужно для одного вызова классификатора.
type Input struct {
	Fields  domain.EntityFields
	Text    string // текст сегмента (или весь текст, если сегмент один)
	Ordinal int
	Total   int
}

// BuildPrompt собирает инструкцию для модели. Пустые поля остаются пустыми строками.
func BuildPrompt(in Input) (system, user string) {
	var b strings.Builder

	switch in.Fields.Kind {
	case domain.KindChapter:
		b.WriteString("Review the following novel chapter.\n")
		if in.Fields.BookTitle != "" {
			fmt.Fprintf(&b, "Book: %s\n", in.Fields.BookTitle)
		}
		fmt.Fprintf(&b, "Chapter %d title: %s\n", in.Fields.ChapterSequence, in.Fields.Title)
		if in.Total > 1 {
			fmt.Fprintf(&b, "Note: this is segment %d of %d of the chapter. Judge only this segment; "+
				"it may start or end mid-scene.\n", in.Ordinal, in.Total)
		}
		fmt.Fprintf(&b, "Content:\n%s\n", in.Text)
	default:
		b.WriteString("Review the following novel listing.\n")
		fmt.Fprintf(&b, "Title: %s\n", in.Fields.Title)
		fmt.Fprintf(&b, "Description: %s\n", in.Text)
	}

	return systemPrompt, b.String()
}
