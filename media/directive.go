package media

import "regexp"

// Kind identifies which of the three recognized directive types a match is.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// directivePattern matches AsciiDoc-style media macros: "image::url[attrs]"
// (block, double colon) or "image:url[attrs]" (inline, single colon), and
// the video/audio equivalents. Captured groups: 1=name, 2=delimiter,
// 3=target, 4=attribute list including brackets.
var directivePattern = regexp.MustCompile(`(image|video|audio)(::?)([^\[\s]+)(\[[^\]]*\])?`)

// Directive is one parsed media reference, with enough of the original text
// preserved to splice a replacement back in without disturbing anything
// else in the document.
type Directive struct {
	Kind      Kind
	Delimiter string // "::" for block, ":" for inline
	Target    string
	Attrs     string // including surrounding brackets, or "" if absent
	Start     int    // byte offset in the source content
	End       int    // byte offset one past the match
}

// Tokenize scans content once and returns every image/video/audio directive
// in source order. Rebuilding content from this token list — rather than
// repeatedly searching for each directive's literal substring — means a URL
// that happens to recur verbatim elsewhere in the document is never
// mismatched to the wrong occurrence.
func Tokenize(content string) []Directive {
	matches := directivePattern.FindAllStringSubmatchIndex(content, -1)
	directives := make([]Directive, 0, len(matches))
	for _, m := range matches {
		name := content[m[2]:m[3]]
		delim := content[m[4]:m[5]]
		target := content[m[6]:m[7]]
		attrs := ""
		if m[8] != -1 {
			attrs = content[m[8]:m[9]]
		}

		var kind Kind
		switch name {
		case "image":
			kind = KindImage
		case "video":
			kind = KindVideo
		case "audio":
			kind = KindAudio
		default:
			continue
		}

		directives = append(directives, Directive{
			Kind:      kind,
			Delimiter: delim,
			Target:    target,
			Attrs:     attrs,
			Start:     m[0],
			End:       m[1],
		})
	}
	return directives
}

// Splice rebuilds content, replacing each directive at index i (identified
// by its Start/End span) for which the replacement function reports ok (its
// bool result). Directives are applied back-to-front so earlier spans' offsets
// stay valid as later ones are rewritten.
func Splice(content string, directives []Directive, replacement func(Directive) (string, bool)) string {
	out := content
	for i := len(directives) - 1; i >= 0; i-- {
		d := directives[i]
		newTarget, ok := replacement(d)
		if !ok {
			continue
		}
		rebuilt := d.Kind.String() + d.Delimiter + newTarget + d.Attrs
		out = out[:d.Start] + rebuilt + out[d.End:]
	}
	return out
}
