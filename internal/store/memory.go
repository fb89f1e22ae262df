package store

import (
	"sync"

	"go.uber.org/zap"
)

// MemoryStore 是进程内的房间存储实现，单机部署时的默认后端，
// 也是所有核心逻辑测试使用的后端
type MemoryStore struct {
	mu sync.RWMutex

	docs map[string]Document
	subs map[string][]chan Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		subs: make(map[string][]chan Document),
	}
}

func (ms *MemoryStore) Get(code string) (Document, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	doc, ok := ms.docs[code]
	if !ok {
		return nil, ErrRoomNotFound
	}

	// 返回副本，避免调用方改动存储内部状态
	copied, err := normalizeDocument(doc)
	if err != nil {
		return nil, err
	}

	return copied, nil
}

func (ms *MemoryStore) Put(code string, doc any) error {
	normalized, err := normalizeDocument(doc)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.docs[code]; exists {
		return ErrRoomExists
	}

	ms.docs[code] = normalized
	ms.notifyLocked(code)

	return nil
}

func (ms *MemoryStore) Patch(code string, fields map[string]any) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	doc, ok := ms.docs[code]
	if !ok {
		return ErrRoomNotFound
	}

	if err := applyPatch(doc, fields); err != nil {
		return err
	}

	ms.notifyLocked(code)

	return nil
}

func (ms *MemoryStore) Delete(code string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.docs[code]; !ok {
		return ErrRoomNotFound
	}

	delete(ms.docs, code)

	// 关闭通道即终止信号
	for _, ch := range ms.subs[code] {
		close(ch)
	}
	delete(ms.subs, code)

	return nil
}

func (ms *MemoryStore) Subscribe(code string) (<-chan Document, func(), error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.docs[code]; !ok {
		return nil, nil, ErrRoomNotFound
	}

	ch := make(chan Document, 16)
	ms.subs[code] = append(ms.subs[code], ch)

	cancel := func() {
		ms.mu.Lock()
		defer ms.mu.Unlock()

		chans := ms.subs[code]
		for i, sub := range chans {
			if sub == ch {
				ms.subs[code] = append(chans[:i], chans[i+1:]...)
				close(ch)
				return
			}
		}
	}

	return ch, cancel, nil
}

func (ms *MemoryStore) notifyLocked(code string) {
	if len(ms.subs[code]) == 0 {
		return
	}

	snapshot, err := normalizeDocument(ms.docs[code])
	if err != nil {
		zap.S().Errorf("生成房间 %s 快照失败: %v", code, err)
		return
	}

	for _, ch := range ms.subs[code] {
		select {
		case ch <- snapshot:
		default:
			// 订阅者消费不过来时丢弃最旧的中间状态，保证最终收敛到最新快照
			select {
			case <-ch:
			default:
			}

			select {
			case ch <- snapshot:
			default:
				zap.S().Warnf("房间 %s 订阅通道已满，丢弃本次快照", code)
			}
		}
	}
}
