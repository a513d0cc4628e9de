package output

// MarkdownFormatter renders results as Markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatWindows(list WindowList) (string, error) {
	return windowTable(list).RenderMarkdown(), nil
}

func (f *MarkdownFormatter) FormatReset(result ResetResult) (string, error) {
	return resetLine(result), nil
}

func (f *MarkdownFormatter) FormatVerdict(v Verdict) (string, error) {
	return verdictTable(v).RenderMarkdown(), nil
}
