package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Document 是房间文档的通用表示，所有键均为 JSON 字段名
type Document = map[string]any

var (
	ErrRoomExists   = errors.New("房间已存在")
	ErrRoomNotFound = errors.New("房间不存在")
)

// 字段删除标记，与写入 null 不同：Patch 遇到它会把整个字段移除
type deleteMarker struct{}

var DeleteField = deleteMarker{}

// RoomStore 是房间文档存储的抽象：按房间码存取整份文档，
// 支持按点分路径的原子批量更新，以及变更订阅推送
type RoomStore interface {
	// Get 返回当前文档，房间不存在时返回 ErrRoomNotFound
	Get(code string) (Document, error)

	// Put 创建文档，房间已存在时返回 ErrRoomExists
	Put(code string, doc any) error

	// Patch 以一个批次原子应用若干字段更新
	// 路径支持点分嵌套（如 players.P1.isAlive），值为 DeleteField 时删除该字段
	Patch(code string, fields map[string]any) error

	// Delete 删除文档，所有订阅者会收到终止信号（通道被关闭）
	Delete(code string) error

	// Subscribe 在每次文档变更后推送完整的最新文档
	// 返回的取消函数用于退订；房间被删除时通道关闭
	Subscribe(code string) (<-chan Document, func(), error)
}

// normalize 把任意可 JSON 序列化的值转成通用文档表示，
// 同时起到深拷贝的作用，避免调用方与存储共享可变引用
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化文档失败: %w", err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("反序列化文档失败: %w", err)
	}

	return out, nil
}

func normalizeDocument(v any) (Document, error) {
	out, err := normalize(v)
	if err != nil {
		return nil, err
	}

	doc, ok := out.(Document)
	if !ok {
		return nil, errors.New("文档必须是对象类型")
	}

	return doc, nil
}

// applyPatch 在文档上应用一个补丁批次，路径上缺失的中间对象会被创建
// 删除标记只作用于叶子字段；中间路径不是对象时返回错误，文档不被修改
func applyPatch(doc Document, fields map[string]any) error {
	// 先整体校验再写入，保证批次要么全部生效要么全部不生效
	for path, value := range fields {
		if err := checkPath(doc, path, value); err != nil {
			return err
		}
	}

	for path, value := range fields {
		parts := strings.Split(path, ".")
		target := doc

		for _, part := range parts[:len(parts)-1] {
			next, ok := target[part].(Document)
			if !ok {
				next = make(Document)
				target[part] = next
			}
			target = next
		}

		leaf := parts[len(parts)-1]
		if _, isDelete := value.(deleteMarker); isDelete {
			delete(target, leaf)
			continue
		}

		normalized, err := normalize(value)
		if err != nil {
			return err
		}
		target[leaf] = normalized
	}

	return nil
}

func checkPath(doc Document, path string, value any) error {
	if path == "" {
		return errors.New("字段路径不能为空")
	}

	if _, isDelete := value.(deleteMarker); !isDelete {
		if _, err := normalize(value); err != nil {
			return err
		}
	}

	parts := strings.Split(path, ".")
	target := doc

	for _, part := range parts[:len(parts)-1] {
		existing, present := target[part]
		if !present {
			// 缺失的中间对象允许按需创建
			return nil
		}

		next, ok := existing.(Document)
		if !ok {
			return fmt.Errorf("字段路径 %s 的中间节点不是对象", path)
		}
		target = next
	}

	return nil
}
