package tablequery

import (
	"context"
	"fmt"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
)

// Compiled is a composed query together with its paginated form.
type Compiled struct {
	// Query is the composed query without limit and offset, used for counting.
	Query query.Query
	// Paginated is Query with the resolved page applied.
	Paginated   query.Query
	Page        int
	Limit       int
	Diagnostics []*apperror.AppError
}

// Compile composes the query and paginates it with the page and limit from the
// options. maxLimit > 0 rejects larger page sizes.
func (b *Builder) Compile(ctx context.Context, maxLimit int) (Compiled, error) {
	q, err := b.Compose(ctx)
	if err != nil {
		return Compiled{}, err
	}

	page, limit := b.ResolvePage(0, 0)
	if maxLimit > 0 && limit > maxLimit {
		return Compiled{}, apperror.NewValidation(fmt.Sprintf("limit must not exceed %d", maxLimit)).
			WithDetail("limit", limit)
	}

	paginated, err := b.Paginate(ctx, page, limit)
	if err != nil {
		return Compiled{}, err
	}

	return Compiled{
		Query:       q,
		Paginated:   paginated,
		Page:        page,
		Limit:       limit,
		Diagnostics: b.Diagnostics(),
	}, nil
}
