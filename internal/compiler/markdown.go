package compiler

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"html/template"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/preleganto/internal/config"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/frontmatter"
)

//go:embed assets/deck.css
var deckCSS string

//go:embed assets/deck.js
var deckJS string

const (
	defaultTitle = "Presentation"
	defaultLang  = "en"
)

var documentTemplate = template.Must(template.New("deck").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="generator" content="preleganto">
{{- if .Author}}
<meta name="author" content="{{.Author}}">
{{- end}}
{{- if .Description}}
<meta name="description" content="{{.Description}}">
{{- end}}
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
{{- range .Stylesheets}}
<link rel="stylesheet" href="{{.}}">
{{- end}}
</head>
<body>
<main class="deck">
{{- range .Slides}}
<section class="slide" id="{{.ID}}">
{{.HTML}}</section>
{{- end}}
</main>
<script>{{.JS}}</script>
</body>
</html>
`))

type slideView struct {
	ID   string
	HTML template.HTML
}

type documentView struct {
	Lang        string
	Title       string
	Author      string
	Description string
	Stylesheets []string
	CSS         template.CSS
	JS          template.JS
	Slides      []slideView
}

// Markdown compiles a Markdown deck into a single HTML document.
//
// The deck may start with a YAML frontmatter block (see frontmatter.Deck).
// Slides are separated by a line containing only "---".
type Markdown struct {
	md       goldmark.Markdown
	embedder *Embedder
	logger   *slog.Logger
}

// MarkdownOption configures a Markdown compiler.
type MarkdownOption func(*Markdown)

// WithEmbedder sets the embedder used when BuildConfig.Embed is true.
func WithEmbedder(e *Embedder) MarkdownOption {
	return func(m *Markdown) { m.embedder = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MarkdownOption {
	return func(m *Markdown) { m.logger = logger }
}

// NewMarkdown returns a Markdown compiler with GitHub flavored extensions.
func NewMarkdown(opts ...MarkdownOption) *Markdown {
	m := &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Typographer),
			goldmark.WithParserOptions(parser.WithAttribute()),
			// Decks routinely carry raw HTML for layout.
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Compile implements Compiler.
func (m *Markdown) Compile(ctx context.Context, source string, cfg config.BuildConfig) (string, error) {
	deck, body, err := m.splitDeck([]byte(source))
	if err != nil {
		return "", err
	}

	view := documentView{
		Lang:        deck.Lang,
		Title:       deck.Title,
		Author:      deck.Author,
		Description: deck.Description,
		Stylesheets: deck.Stylesheets,
		CSS:         template.CSS(deckCSS), // #nosec G203 -- embedded asset
		JS:          template.JS(deckJS),   // #nosec G203 -- embedded asset
	}
	if view.Lang == "" {
		view.Lang = defaultLang
	}

	parts := splitSlides(string(body))
	ids := slideIDs(parts)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := m.md.Convert([]byte(part), &buf); err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryCompile, "markdown conversion failed").
				WithContext("slide", i+1).
				Build()
		}
		view.Slides = append(view.Slides, slideView{ID: ids[i], HTML: template.HTML(buf.String())}) // #nosec G203 -- author content
		if view.Title == "" {
			view.Title = firstHeading(part)
		}
	}
	if view.Title == "" {
		view.Title = defaultTitle
	}

	var out bytes.Buffer
	if err := documentTemplate.Execute(&out, view); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryInternal, "render document template").Build()
	}

	if !cfg.Embed {
		return out.String(), nil
	}
	m.logger.DebugContext(ctx, "Embedding external assets", "root", cfg.RootPath, "slides", len(parts))
	embedder := m.embedder
	if embedder == nil {
		embedder = NewEmbedder(DefaultEmbedOptions())
		m.embedder = embedder
	}
	return embedder.Embed(ctx, out.String(), cfg.RootPath)
}

func (m *Markdown) splitDeck(content []byte) (frontmatter.Deck, []byte, error) {
	fm, body, had, err := frontmatter.Split(content)
	if errors.Is(err, frontmatter.ErrMissingClosingDelimiter) || !had {
		// A leading separator without a closing one is just an empty first slide.
		return frontmatter.Deck{}, content, nil
	}
	deck, err := frontmatter.ParseDeck(fm)
	if errors.Is(err, frontmatter.ErrNotMapping) {
		// The deck opens with a slide separator, not a header.
		return frontmatter.Deck{}, content, nil
	}
	if err != nil {
		return frontmatter.Deck{}, nil, ferrors.WrapError(err, ferrors.CategoryCompile, "invalid deck frontmatter").Build()
	}
	return deck, body, nil
}
