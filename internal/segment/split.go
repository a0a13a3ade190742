// Package segment режет длинные главы на куски для классификатора и сводит
// вердикты по кускам обратно в один вердикт.
package segment

// DefaultBoundaryWindow - насколько далеко назад от точки реза ищем конец предложения.
const DefaultBoundaryWindow = 200

// isBoundary - символы, после которых можно резать: конец предложения или абзаца.
func isBoundary(r rune) bool {
	switch r {
	case '.', '?', '!', '\n', '。', '？', '！':
		return true
	}
	return false
}

// Split делит текст на куски не длиннее maxLength символов (рун).
// Склейка результата в исходном порядке всегда дает исходный текст.
func Split(text string, maxLength int) []string {
	return SplitWindow(text, maxLength, DefaultBoundaryWindow)
}

// SplitWindow - Split с настраиваемым окном поиска границы.
func SplitWindow(text string, maxLength, window int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	if maxLength <= 0 || n <= maxLength {
		return []string{text}
	}
	if window < 0 {
		window = 0
	}

	segments := make([]string, 0, n/maxLength+1)
	for offset := 0; offset < n; {
		cut := offset + maxLength
		if cut >= n {
			cut = n
		} else {
			// Ищем назад, но не дальше окна и не левее начала текущего куска
			floor := max(cut-window, offset)
			for i := cut - 1; i >= floor; i-- {
				if isBoundary(runes[i]) {
					cut = i + 1
					break
				}
			}
		}
		segments = append(segments, string(runes[offset:cut]))
		offset = cut
	}
	return segments
}

// Segments оборачивает Split в типизированные сегменты с порядковыми номерами.
func Segments(text string, maxLength, window int) []Segment {
	parts := SplitWindow(text, maxLength, window)
	out := make([]Segment, len(parts))
	for i, p := range parts {
		out[i] = Segment{Ordinal: i + 1, Text: p, Total: len(parts)}
	}
	return out
}

// Segment - кусок текста с позицией "i из n".
type Segment struct {
	Ordinal int
	Text    string
	Total   int
}
