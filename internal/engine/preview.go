package engine

import (
	"context"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

// Preview - результат классификации без записи в леджер и каталог.
type Preview struct {
	Segments []domain.SegmentVerdict
	Verdict  domain.Verdict
	Route    domain.AuditStatus // куда попала бы сущность
}

// Preview классифицирует поля так же, как Audit, но ничего не сохраняет.
func (o *Orchestrator) Preview(ctx context.Context, fields domain.EntityFields) (Preview, error) {
	r := &run{fields: fields, started: o.now()}
	if err := o.classify(ctx, r); err != nil {
		return Preview{}, err
	}
	return Preview{
		Segments: r.trace,
		Verdict:  r.verdict,
		Route:    o.route(r.verdict),
	}, nil
}
