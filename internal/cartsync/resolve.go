package cartsync

import "context"

// Source names where a resolved cart came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
	SourceMemory Source = "memory"
	SourceEmpty  Source = "empty"
)

// Resolution is the outcome of a strategy: the lines to adopt and the follow-up writes needed to
// bring the other stores in line with them.
type Resolution struct {
	Lines      []Line
	Source     Source
	PushRemote bool
	SaveLocal  bool
}

// Strategy is one step of a fallback chain. Resolve reports false when it has nothing to offer and
// the next strategy should be consulted.
type Strategy struct {
	Name    string
	Resolve func(ctx context.Context) (Resolution, bool)
}

// FirstMatch evaluates strategies in order and returns the first result. When none match the
// empty resolution is returned.
func FirstMatch(ctx context.Context, strategies ...Strategy) (Resolution, string) {
	for _, strategy := range strategies {
		if strategy.Resolve == nil {
			continue
		}
		if res, ok := strategy.Resolve(ctx); ok {
			return res, strategy.Name
		}
	}
	return Resolution{Source: SourceEmpty}, "empty"
}

func (e *Engine) remoteStrategy(userID string) Strategy {
	return Strategy{
		Name: "remote",
		Resolve: func(ctx context.Context) (Resolution, bool) {
			lines, err := e.remote.FetchCart(ctx, userID)
			if err != nil {
				e.logger.Warn("remote cart fetch failed; falling back",
					userField(userID), errorField(err))
				return Resolution{}, false
			}
			lines = normaliseLines(lines)
			if len(lines) == 0 {
				return Resolution{}, false
			}
			return Resolution{Lines: lines, Source: SourceRemote, SaveLocal: true}, true
		},
	}
}

func (e *Engine) localStrategy(key string, push bool) Strategy {
	return Strategy{
		Name: "local",
		Resolve: func(ctx context.Context) (Resolution, bool) {
			lines, ok := e.local.Load(ctx, key)
			if !ok || len(lines) == 0 {
				return Resolution{}, false
			}
			return Resolution{Lines: lines, Source: SourceLocal, PushRemote: push}, true
		},
	}
}

func memoryStrategy(lines []Line) Strategy {
	return Strategy{
		Name: "memory",
		Resolve: func(context.Context) (Resolution, bool) {
			if len(lines) == 0 {
				return Resolution{}, false
			}
			return Resolution{Lines: cloneLines(lines), Source: SourceMemory, PushRemote: true, SaveLocal: true}, true
		},
	}
}
