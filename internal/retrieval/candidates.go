package retrieval

import (
	"context"
	"time"

	"ragorch/internal/persistence/databases"
)

// sourceDiagnostics carries per-leg retrieval timings and counts, folded
// into activity steps by the dispatcher.
type sourceDiagnostics struct {
	FtLatency  time.Duration
	VecLatency time.Duration
	FtCount    int
	VecCount   int
}

// parallelCandidates queries the lexical and vector backends concurrently
// and waits for both. A nil backend or a zero budget for a leg skips that
// leg rather than erroring.
func parallelCandidates(ctx context.Context, search databases.FullTextSearch, vector databases.VectorStore, plan queryPlan, queryVec []float32, filter map[string]string) ([]databases.SearchResult, []databases.VectorResult, sourceDiagnostics, error) {
	type ftOut struct {
		res []databases.SearchResult
		dur time.Duration
		err error
	}
	type vecOut struct {
		res []databases.VectorResult
		dur time.Duration
		err error
	}

	ftCh := make(chan ftOut, 1)
	vecCh := make(chan vecOut, 1)

	if plan.FtK > 0 && search != nil {
		go func() {
			t0 := time.Now()
			res, err := search.Search(ctx, plan.Query, plan.FtK)
			ftCh <- ftOut{res: res, dur: time.Since(t0), err: err}
		}()
	} else {
		ftCh <- ftOut{}
	}

	if plan.VecK > 0 && vector != nil && len(queryVec) > 0 {
		go func() {
			t0 := time.Now()
			res, err := vector.SimilaritySearch(ctx, queryVec, plan.VecK, filter)
			vecCh <- vecOut{res: res, dur: time.Since(t0), err: err}
		}()
	} else {
		vecCh <- vecOut{}
	}

	fto, vco := <-ftCh, <-vecCh
	if fto.err != nil {
		return nil, nil, sourceDiagnostics{}, fto.err
	}
	if vco.err != nil {
		return nil, nil, sourceDiagnostics{}, vco.err
	}
	diag := sourceDiagnostics{FtLatency: fto.dur, VecLatency: vco.dur, FtCount: len(fto.res), VecCount: len(vco.res)}
	return fto.res, vco.res, diag, nil
}
