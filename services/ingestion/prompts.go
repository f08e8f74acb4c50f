package ingestion

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/miras/services/llm"
)

const extractionPrompt = `You are an expert document processor. Your task is to extract and preserve ALL content from this PDF document in XML format.

Requirements:
1. Extract ALL text content maintaining original structure
2. Preserve table structures with proper XML tags
3. Maintain heading hierarchies with appropriate XML nesting
4. Preserve bullet points and numbered lists with list tags
5. Extract image descriptions if images contain important information
6. Use semantic XML tags that clearly indicate content type

Output the extracted content in well-formed XML format following this structure:

<document>
    <title>Document Title</title>
    <sections>
        <section level="1" title="Section Title">
            <content>Section content text</content>
            <subsection level="2" title="Subsection Title">
                <content>Subsection content</content>
                <list type="bullet">
                    <item>List item 1</item>
                    <item>List item 2</item>
                </list>
            </subsection>
            <table>
                <thead>
                    <row>
                        <cell>Header 1</cell>
                        <cell>Header 2</cell>
                    </row>
                </thead>
                <tbody>
                    <row>
                        <cell>Data 1</cell>
                        <cell>Data 2</cell>
                    </row>
                </tbody>
            </table>
        </section>
    </sections>
</document>

Be thorough - extract ALL content without skipping or summarizing. Ensure proper XML escaping for special characters.`

const metadataPrompt = `Extract the following metadata from this document:
- Document title
- Document type (report, manual, guide, etc.)
- Key topics/subjects covered
- Date (if available)
- Author/Organization (if available)
- Summary (2-3 sentences)

Return as structured JSON.`

// metadataSchema pins the metadata keys so the uploader can rely on
// them.
func metadataSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"title":   {Type: "string"},
			"type":    {Type: "string", Description: "Document type (report, manual, guide, etc.)"},
			"topics":  {Type: "array", Items: &llm.Schema{Type: "string"}},
			"date":    {Type: "string", Description: "Document date if available"},
			"author":  {Type: "string", Description: "Author or organization if available"},
			"summary": {Type: "string", Description: "2-3 sentence summary"},
		},
		Required: []string{"title", "type", "topics", "summary"},
	}
}

func parseMetadata(text string) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return Metadata{}, err
	}
	if meta.Topics == nil {
		meta.Topics = []string{}
	}
	return meta, nil
}

// fallbackMetadata is used when the model's metadata response does
// not parse.
func fallbackMetadata(filename string) Metadata {
	return Metadata{
		Title:   strings.TrimSuffix(filename, filepath.Ext(filename)),
		Type:    "unknown",
		Topics:  []string{},
		Summary: "Could not extract metadata",
	}
}
