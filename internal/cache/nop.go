package cache

import (
	"context"
	"time"
)

// Nop is the stand-in used when caching is disabled. Every read is a miss
// and every write is dropped, so the data layer behaves identically with or
// without a cache server, only slower.
type Nop struct{}

var _ Cache = Nop{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (Nop) Set(context.Context, string, []byte, time.Duration) {}

func (Nop) Delete(context.Context, ...string) {}

func (Nop) DeletePattern(context.Context, string) int { return 0 }

func (Nop) Stats(context.Context) Stats { return Stats{} }

func (Nop) Flush(context.Context) error { return nil }

func (Nop) Close() error { return nil }
