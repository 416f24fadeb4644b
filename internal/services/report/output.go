package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/services/notify"
)

// Output holds the rendered forms of a report
type Output struct {
	Title    string
	Base     string
	Markdown string
	HTML     string
	PDF      []byte
}

// Render produces markdown, a standalone HTML page and a PDF
func Render(r *Report) (*Output, error) {
	md := r.Markdown()

	fragment, err := notify.RenderMarkdown(md)
	if err != nil {
		return nil, fmt.Errorf("failed to render report HTML: %w", err)
	}

	pdf, err := RenderPDF(md, r.Title())
	if err != nil {
		return nil, err
	}

	return &Output{
		Title:    r.Title(),
		Base:     FileBase(r.Month),
		Markdown: md,
		HTML:     notify.WrapHTML(r.Title(), fragment),
		PDF:      pdf,
	}, nil
}

// WriteFiles writes <base>.md, .html and .pdf into dir and returns their paths
func (o *Output) WriteFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	files := []struct {
		ext  string
		data []byte
	}{
		{".md", []byte(o.Markdown)},
		{".html", []byte(o.HTML)},
		{".pdf", o.PDF},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, o.Base+f.ext)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Mailer sends a rendered report
type Mailer interface {
	SendReport(ctx context.Context, subject, markdownBody string, attachments []notify.Attachment) error
}

// Publisher writes reports to disk and optionally mails them
type Publisher struct {
	dir    string
	mailer Mailer
	logger arbor.ILogger
}

// NewPublisher creates a publisher. mailer may be nil.
func NewPublisher(dir string, mailer Mailer, logger arbor.ILogger) *Publisher {
	return &Publisher{dir: dir, mailer: mailer, logger: logger}
}

// Publish renders the report, writes the files and mails it when email is set
func (p *Publisher) Publish(ctx context.Context, r *Report, email bool) (*Output, error) {
	out, err := Render(r)
	if err != nil {
		return nil, err
	}

	paths, err := out.WriteFiles(p.dir)
	if err != nil {
		return out, err
	}
	p.logger.Info().Strs("files", paths).Msg("Report written")

	if !email {
		return out, nil
	}
	if p.mailer == nil {
		return out, fmt.Errorf("email requested but no email channel is configured")
	}

	attachment := notify.Attachment{
		Filename:    out.Base + ".pdf",
		ContentType: "application/pdf",
		Data:        out.PDF,
	}
	if err := p.mailer.SendReport(ctx, out.Title, out.Markdown, []notify.Attachment{attachment}); err != nil {
		return out, fmt.Errorf("failed to email report: %w", err)
	}
	p.logger.Info().Str("subject", out.Title).Msg("Report emailed")
	return out, nil
}
