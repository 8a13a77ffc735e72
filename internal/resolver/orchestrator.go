package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
	"github.com/ati-tools/manualfinder/internal/metrics"
)

// Orchestrator runs the source resolvers in precedence order and attaches the
// warranty lookup. The first resolver that returns a validated document wins;
// a reference-URL-only outcome is kept as a fallback while later sources are
// still tried for actual bytes. A resolver error disqualifies that source
// only.
type Orchestrator struct {
	resolvers []manual.Resolver
	warranty  *WarrantyFinder
	logger    *zap.Logger
}

// NewOrchestrator builds the orchestrator. resolvers are consulted in the
// order given.
func NewOrchestrator(resolvers []manual.Resolver, warranty *WarrantyFinder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		resolvers: resolvers,
		warranty:  warranty,
		logger:    logger,
	}
}

// Resolve produces the full result for one product: the document resolution
// plus the warranty phrase. Only context cancellation is returned as an
// error; source failures degrade to a not-found document.
func (o *Orchestrator) Resolve(ctx context.Context, identity manual.ProductIdentity) (manual.ProductResult, error) {
	result := manual.ProductResult{Document: manual.NotFound()}

	var fallback *manual.Resolution
	for _, r := range o.resolvers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := r.Resolve(ctx, identity)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			metrics.ObserveResolverOutcome(r.Name(), "error")
			o.logger.Warn("resolver failed",
				zap.String("source", r.Name()),
				zap.String("model", identity.Model),
				zap.Error(err))
			continue
		}
		metrics.ObserveResolverOutcome(r.Name(), string(res.Kind))
		switch res.Kind {
		case manual.ResolutionFound:
			result.Document = res
			o.logger.Info("document resolved",
				zap.String("source", r.Name()),
				zap.String("model", identity.Model),
				zap.String("url", res.URL))
		case manual.ResolutionURLOnly:
			if fallback == nil {
				copied := res
				fallback = &copied
			}
		}
		if result.Document.Kind == manual.ResolutionFound {
			break
		}
	}
	if result.Document.Kind != manual.ResolutionFound && fallback != nil {
		result.Document = *fallback
	}

	if o.warranty != nil {
		phrase, err := o.warranty.Find(ctx, identity)
		if err != nil {
			return result, err
		}
		result.Warranty = phrase
	}
	return result, nil
}
