package gallery

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Index renders snap as a markdown outline: one section per group, one
// bullet per image. The selected group is marked.
func Index(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Flowcharts\n\n%d %s in %d %s\n",
		snap.ImageCount, plural(snap.ImageCount, "image", "images"),
		snap.GroupCount, plural(snap.GroupCount, "group", "groups"))

	for _, g := range snap.Groups {
		b.WriteString("\n## ")
		b.WriteString(escapeMarkdown(g.Key))
		if g.Key == snap.Selected {
			b.WriteString(" (selected)")
		}
		b.WriteString("\n\n")
		for _, img := range g.Images {
			fmt.Fprintf(&b, "- %s %s\n", codeSpan(img.Path), humanize.Bytes(uint64(img.Size)))
		}
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`, "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "&", `\&`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// codeSpan wraps s in a backtick run longer than any run inside it. Content
// that starts or ends with a backtick is padded so the delimiters stay apart.
func codeSpan(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", longest+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}
