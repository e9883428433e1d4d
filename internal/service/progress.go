package service

import "context"

// Stage names a phase of an index build.
type Stage string

const (
	StageLoading    Stage = "loading"
	StageSplitting  Stage = "splitting"
	StageEmbedding  Stage = "embedding"
	StagePersisting Stage = "persisting"
)

// Progress is reported while an index is being built.
type Progress struct {
	Stage Stage `json:"stage"`
	Done  int   `json:"done"`
	Total int   `json:"total"`
}

// ProgressFunc receives build progress. It may be called from several
// goroutines at once.
type ProgressFunc func(Progress)

type progressKey struct{}

// WithProgress attaches fn to ctx; builds started with ctx report to it.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress delivers p to the function attached to ctx, if any.
func ReportProgress(ctx context.Context, p Progress) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(p)
	}
}
