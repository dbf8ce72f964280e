package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/models"
)

// ScrapeAll runs every catalog category in declaration order. A failing
// category is recorded as empty and never stops the batch.
func (p *Pipeline) ScrapeAll(ctx context.Context, b browser.Browser) (*models.CategoryResult, int) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ScrapeAll")
	defer span.End()

	result := models.NewCategoryResult()
	for _, cat := range p.cat.Categories() {
		records, err := p.ScrapeCategory(ctx, b, cat.Name)
		if err != nil {
			p.log.Error("category failed", "category", cat.Name, "error", err)
			result.Set(cat.Name, nil)
			continue
		}
		p.log.Info("category done", "category", cat.Name, "posts", len(records))
		result.Set(cat.Name, records)
	}

	total := result.Total()
	span.SetAttributes(attribute.Int("posts", total))
	p.log.Info("all categories done", "categories", result.Len(), "total", total)
	return result, total
}
