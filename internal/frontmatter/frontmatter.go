// Package frontmatter separates and decodes the YAML header of a slide deck.
package frontmatter

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// frontmatter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// ErrNotMapping indicates a delimited leading block that is not a YAML
// mapping, such as a first slide opened by a slide separator.
var ErrNotMapping = errors.New("leading block is not a yaml mapping")

// Deck holds the presentation-wide settings a deck may declare.
type Deck struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	Lang        string `yaml:"lang"`
	Description string `yaml:"description"`
	// Stylesheets are extra CSS references linked from the document head.
	Stylesheets []string `yaml:"stylesheets"`
}

// Split separates YAML frontmatter (`---` delimited) from the Markdown body.
//
// If the document does not start with a delimiter line, had is false and body
// is the full input.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		if !bytes.HasSuffix(content, []byte(nl+"---")) {
			return nil, nil, false, ErrMissingClosingDelimiter
		}
		// Header only, no body after the closing delimiter.
		end := len(content) - len(nl+"---")
		return content[start : end+len(nl)], []byte{}, true, nil
	}

	end := start + idx + len(nl)
	return content[start:end], content[start+idx+len(closeSeq):], true, nil
}

// ParseDeck decodes raw frontmatter (without delimiters). An empty block
// yields a zero Deck. A block that parses but is not a mapping (plain text,
// a Markdown heading read as a YAML comment) returns ErrNotMapping.
func ParseDeck(frontmatter []byte) (Deck, error) {
	var deck Deck
	if len(bytes.TrimSpace(frontmatter)) == 0 {
		return deck, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(frontmatter, &doc); err != nil {
		return Deck{}, err
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return Deck{}, ErrNotMapping
	}
	if err := root.Decode(&deck); err != nil {
		return Deck{}, err
	}
	return deck, nil
}

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
