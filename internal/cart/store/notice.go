package store

import (
	"context"
	"sync"
)

const maxNotices = 20

// NoticeBuffer keeps the most recent notices until a client drains them.
type NoticeBuffer struct {
	mu      sync.Mutex
	notices []Notice
}

func (b *NoticeBuffer) Notify(_ context.Context, n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.Variant == "" {
		n.Variant = "default"
	}
	b.notices = append(b.notices, n)
	if len(b.notices) > maxNotices {
		b.notices = b.notices[len(b.notices)-maxNotices:]
	}
}

func (b *NoticeBuffer) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}
